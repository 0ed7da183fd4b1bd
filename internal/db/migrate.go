package db

import (
	"context"
	"fmt"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		email         text NOT NULL UNIQUE,
		full_name     text NOT NULL,
		bio           text NOT NULL DEFAULT '',
		profile_pic   text NOT NULL DEFAULT '',
		password_hash text NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS groups (
		id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		name        text NOT NULL,
		bio         text NOT NULL DEFAULT '',
		profile_pic text NOT NULL DEFAULT '',
		created_by  uuid NOT NULL REFERENCES users(id),
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		group_id  uuid NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id   uuid NOT NULL REFERENCES users(id),
		joined_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (user_id)`,

	// Exactly one of recipient_id / group_id is set; system rows always
	// target a group. members_at_send is written once at insert time.
	`CREATE TABLE IF NOT EXISTS messages (
		id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		kind            text NOT NULL CHECK (kind IN ('direct', 'group', 'system')),
		sender_id       uuid NOT NULL REFERENCES users(id),
		recipient_id    uuid REFERENCES users(id),
		group_id        uuid REFERENCES groups(id),
		body            text NOT NULL DEFAULT '',
		image           text NOT NULL DEFAULT '',
		created_at      timestamptz NOT NULL DEFAULT now(),
		seen            boolean NOT NULL DEFAULT false,
		seen_by         uuid[] NOT NULL DEFAULT '{}',
		members_at_send uuid[] NOT NULL DEFAULT '{}',
		CHECK (
			(kind = 'direct' AND recipient_id IS NOT NULL AND group_id IS NULL) OR
			(kind IN ('group', 'system') AND group_id IS NOT NULL AND recipient_id IS NULL)
		)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages (group_id, created_at)
		WHERE group_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair_created ON messages (sender_id, recipient_id, created_at)
		WHERE kind = 'direct'`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unseen_direct ON messages (recipient_id, sender_id)
		WHERE kind = 'direct' AND NOT seen`,

	`CREATE TABLE IF NOT EXISTS watermarks (
		user_id      uuid NOT NULL REFERENCES users(id),
		scope_kind   text NOT NULL CHECK (scope_kind IN ('direct', 'group')),
		scope_id     uuid NOT NULL,
		last_seen_at timestamptz NOT NULL,
		PRIMARY KEY (user_id, scope_kind, scope_id)
	)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	db.logger.Info("database schema ready")
	return nil
}
