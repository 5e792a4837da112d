package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, msg domain.Message) (domain.Message, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages(room_id, sender_id, body, attachment_url)
		VALUES($1, $2, $3, $4)
		RETURNING message_id, created_at
	`, msg.RoomID, msg.SenderID, msg.Body, msg.AttachmentURL).Scan(&msg.ID, &msg.CreatedAt)
	return msg, err
}

func (r *MessageRepository) Get(ctx context.Context, messageID string) (domain.Message, error) {
	var msg domain.Message
	err := r.pool.QueryRow(ctx, `
		SELECT message_id, room_id, sender_id, body, attachment_url, pinned, created_at
		FROM messages
		WHERE message_id=$1
	`, messageID).Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Body, &msg.AttachmentURL, &msg.Pinned, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return msg, domain.ErrNotFound
	}
	return msg, err
}

// Delete removes the message row; reactions and receipts cascade. Returns
// ErrNotFound when the row is already gone.
func (r *MessageRepository) Delete(ctx context.Context, messageID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE message_id=$1`, messageID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TogglePin flips the pinned flag atomically and returns the new state.
func (r *MessageRepository) TogglePin(ctx context.Context, messageID string) (domain.Message, error) {
	var msg domain.Message
	err := r.pool.QueryRow(ctx, `
		UPDATE messages SET pinned = NOT pinned
		WHERE message_id=$1
		RETURNING message_id, room_id, sender_id, body, attachment_url, pinned, created_at
	`, messageID).Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Body, &msg.AttachmentURL, &msg.Pinned, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return msg, domain.ErrNotFound
	}
	return msg, err
}

func (r *MessageRepository) ListByRoom(ctx context.Context, roomID string, limit int, cursorID *string) ([]domain.Message, error) {
	base := `
		SELECT message_id, room_id, sender_id, body, attachment_url, pinned, created_at
		FROM messages
		WHERE room_id=$1`
	args := []any{roomID}

	if cursorID != nil {
		base += ` AND created_at < (SELECT created_at FROM messages WHERE message_id=$2)
		ORDER BY created_at DESC LIMIT $3`
		args = append(args, *cursorID, limit)
	} else {
		base += ` ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &m.AttachmentURL, &m.Pinned, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
