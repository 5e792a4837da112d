package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) CreateRoom(ctx context.Context, name, roomType, createdBy string, memberIDs []string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var roomID string
	err = tx.QueryRow(ctx, `INSERT INTO rooms(name, room_type, created_by) VALUES($1, $2, $3) RETURNING room_id`, name, roomType, createdBy).Scan(&roomID)
	if err != nil {
		return "", err
	}
	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO room_members(room_id, user_id) VALUES($1, $2) ON CONFLICT DO NOTHING`, roomID, userID); err != nil {
			return "", err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO room_members(room_id, user_id) VALUES($1, $2) ON CONFLICT DO NOTHING`, roomID, createdBy); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return roomID, nil
}

func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2
		)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

func (r *RoomRepository) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY joined_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
