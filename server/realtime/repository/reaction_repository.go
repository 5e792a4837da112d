package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/common/infra/db"
	"social_server/server/realtime/domain"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Create inserts a reaction row. A concurrent duplicate surfaces as
// domain.ErrConflict via the (message_id, user_id, emoji) primary key;
// the delivery engine treats that as already-added.
func (r *ReactionRepository) Create(ctx context.Context, reaction domain.Reaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reactions(message_id, user_id, emoji) VALUES($1, $2, $3)
	`, reaction.MessageID, reaction.UserID, reaction.Emoji)
	if db.IsUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

// Delete removes the row and reports whether it existed.
func (r *ReactionRepository) Delete(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3
	`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// GroupsForMessage computes the emoji aggregates on read; counts are never
// stored on the message row.
func (r *ReactionRepository) GroupsForMessage(ctx context.Context, messageID string) ([]domain.ReactionGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emoji, COUNT(*)::BIGINT, ARRAY_AGG(user_id ORDER BY created_at ASC)
		FROM reactions
		WHERE message_id=$1
		GROUP BY emoji
		ORDER BY emoji
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domain.ReactionGroup, 0)
	for rows.Next() {
		var g domain.ReactionGroup
		if err := rows.Scan(&g.Emoji, &g.Count, &g.Users); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
