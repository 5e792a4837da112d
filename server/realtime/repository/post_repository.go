package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

func (r *PostRepository) CreateScheduled(ctx context.Context, post domain.ScheduledPost) (domain.ScheduledPost, error) {
	post.Status = domain.PostStatusPending
	err := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_posts(author_id, body, status, due_at)
		VALUES($1, $2, $3, $4)
		RETURNING post_id, created_at
	`, post.AuthorID, post.Body, post.Status, post.DueAt).Scan(&post.ID, &post.CreatedAt)
	return post, err
}

func (r *PostRepository) Get(ctx context.Context, postID string) (domain.ScheduledPost, error) {
	var post domain.ScheduledPost
	err := r.pool.QueryRow(ctx, `
		SELECT post_id, author_id, body, status, due_at, published_at, created_at
		FROM scheduled_posts
		WHERE post_id=$1
	`, postID).Scan(&post.ID, &post.AuthorID, &post.Body, &post.Status, &post.DueAt, &post.PublishedAt, &post.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return post, domain.ErrNotFound
	}
	return post, err
}

func (r *PostRepository) ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledPost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT post_id, author_id, body, status, due_at, published_at, created_at
		FROM scheduled_posts
		WHERE status=$1 AND due_at IS NOT NULL AND due_at <= $2
		ORDER BY due_at ASC
	`, domain.PostStatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ScheduledPost, 0)
	for rows.Next() {
		var post domain.ScheduledPost
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Body, &post.Status, &post.DueAt, &post.PublishedAt, &post.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, post)
	}
	return items, rows.Err()
}

// MarkPublished transitions pending->published, clearing due_at. The
// status precondition in the WHERE clause is the double-publish guard:
// a second sweep racing on the same row affects zero rows and reports
// published=false so the caller skips silently.
func (r *PostRepository) MarkPublished(ctx context.Context, postID string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE scheduled_posts
		SET status=$2, due_at=NULL, published_at=NOW()
		WHERE post_id=$1 AND status=$3
	`, postID, domain.PostStatusPublished, domain.PostStatusPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
