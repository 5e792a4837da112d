package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO activities(actor_id, action, target_type, target_id, detail)
		VALUES($1, $2, $3, $4, $5)
		RETURNING activity_id, created_at
	`, a.ActorID, a.Action, a.TargetType, a.TargetID, a.Detail).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (r *ActivityRepository) CreateReport(ctx context.Context, report domain.Report) (domain.Report, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reports(message_id, room_id, sender_id, matched_keyword)
		VALUES($1, $2, $3, $4)
		RETURNING report_id, created_at
	`, report.MessageID, report.RoomID, report.SenderID, report.MatchedKeyword).Scan(&report.ID, &report.CreatedAt)
	return report, err
}
