package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications(recipient_id, type, title, message, related_id, action_url)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING notification_id, created_at
	`, n.RecipientID, n.Type, n.Title, n.Message, n.RelatedID, n.ActionURL).Scan(&n.ID, &n.CreatedAt)
	return n, err
}

// CountUnread recomputes the unread total from rows on every call; the
// count is never cached because multiple server instances share the store.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)::BIGINT FROM notifications WHERE recipient_id=$1 AND read=FALSE
	`, recipientID).Scan(&count)
	return count, err
}

func (r *NotificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	base := `
		SELECT notification_id, recipient_id, type, title, message, related_id, action_url, read, created_at
		FROM notifications
		WHERE recipient_id=$1`
	if unreadOnly {
		base += ` AND read=FALSE`
	}
	base += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, base, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.ActionURL, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read=TRUE WHERE notification_id=$1 AND recipient_id=$2
	`, notificationID, recipientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, notificationID, recipientID string) error {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM notifications WHERE notification_id=$1 AND recipient_id=$2
	`, notificationID, recipientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteReadBefore removes read notifications older than the cutoff and
// returns how many rows went away. Used by the retention sweep.
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, cutoffDays int) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE read=TRUE AND created_at < NOW() - make_interval(days => $1)
	`, cutoffDays)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
