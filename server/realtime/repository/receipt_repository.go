package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Upsert creates the receipt or refreshes read_at on repeated marks; the
// (message_id, user_id) primary key guarantees at most one row per pair.
func (r *ReceiptRepository) Upsert(ctx context.Context, messageID, userID string) (domain.ReadReceipt, error) {
	receipt := domain.ReadReceipt{MessageID: messageID, UserID: userID}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO read_receipts(message_id, user_id, read_at)
		VALUES($1, $2, NOW())
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read_at=EXCLUDED.read_at
		RETURNING read_at
	`, messageID, userID).Scan(&receipt.ReadAt)
	return receipt, err
}

func (r *ReceiptRepository) ListForMessage(ctx context.Context, messageID string) ([]domain.ReadReceipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id=$1
		ORDER BY read_at ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ReadReceipt, 0)
	for rows.Next() {
		var item domain.ReadReceipt
		if err := rows.Scan(&item.MessageID, &item.UserID, &item.ReadAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
