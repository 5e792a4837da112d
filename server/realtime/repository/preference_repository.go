package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"social_server/server/realtime/domain"
)

type PreferenceRepository struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepository(pool *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{pool: pool}
}

// GetOrCreate lazily creates the default-permissive row. The insert races
// harmlessly: ON CONFLICT DO NOTHING under the user_id primary key means
// two concurrent first accesses still end with exactly one row.
func (r *PreferenceRepository) GetOrCreate(ctx context.Context, userID string) (domain.NotificationPreference, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences(user_id) VALUES($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return domain.NotificationPreference{}, err
	}

	var p domain.NotificationPreference
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, follow_notifications, message_notifications,
		       reaction_notifications, mention_notifications, post_notifications,
		       updated_at
		FROM notification_preferences
		WHERE user_id=$1
	`, userID).Scan(&p.UserID, &p.FollowNotifications, &p.MessageNotifications,
		&p.ReactionNotifications, &p.MentionNotifications, &p.PostNotifications,
		&p.UpdatedAt)
	return p, err
}

func (r *PreferenceRepository) Update(ctx context.Context, p domain.NotificationPreference) (domain.NotificationPreference, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences(
			user_id, follow_notifications, message_notifications,
			reaction_notifications, mention_notifications, post_notifications,
			updated_at
		)
		VALUES($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			follow_notifications=EXCLUDED.follow_notifications,
			message_notifications=EXCLUDED.message_notifications,
			reaction_notifications=EXCLUDED.reaction_notifications,
			mention_notifications=EXCLUDED.mention_notifications,
			post_notifications=EXCLUDED.post_notifications,
			updated_at=NOW()
		RETURNING updated_at
	`, p.UserID, p.FollowNotifications, p.MessageNotifications,
		p.ReactionNotifications, p.MentionNotifications, p.PostNotifications).Scan(&p.UpdatedAt)
	return p, err
}
