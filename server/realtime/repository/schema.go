package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique indexes on reactions and read_receipts are what make the toggle
// and mark-read operations race-safe across server instances; the store,
// not an in-process mutex, serializes concurrent writers on one key.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS rooms (
	room_id    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name       TEXT NOT NULL DEFAULT '',
	room_type  TEXT NOT NULL DEFAULT 'direct',
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   UUID NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	message_id     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	room_id        UUID NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
	sender_id      TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	attachment_url TEXT,
	pinned         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at DESC);

CREATE TABLE IF NOT EXISTS reactions (
	message_id UUID NOT NULL REFERENCES messages(message_id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	emoji      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (message_id, user_id, emoji)
);

CREATE TABLE IF NOT EXISTS read_receipts (
	message_id UUID NOT NULL REFERENCES messages(message_id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	read_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (message_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	notification_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	recipient_id    TEXT NOT NULL,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	related_id      TEXT,
	action_url      TEXT,
	read            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, read, created_at DESC);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id                TEXT PRIMARY KEY,
	follow_notifications   BOOLEAN NOT NULL DEFAULT TRUE,
	message_notifications  BOOLEAN NOT NULL DEFAULT TRUE,
	reaction_notifications BOOLEAN NOT NULL DEFAULT TRUE,
	mention_notifications  BOOLEAN NOT NULL DEFAULT TRUE,
	post_notifications     BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scheduled_posts (
	post_id      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	author_id    TEXT NOT NULL,
	body         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	due_at       TIMESTAMPTZ,
	published_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scheduled_posts_due ON scheduled_posts(status, due_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS activities (
	activity_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	actor_id    TEXT NOT NULL,
	action      TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reports (
	report_id       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	message_id      UUID NOT NULL,
	room_id         UUID NOT NULL,
	sender_id       TEXT NOT NULL,
	matched_keyword TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaDDL)
	return err
}
