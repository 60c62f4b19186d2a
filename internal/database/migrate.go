package database

import (
	"context"
	"fmt"
	"strings"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		nickname TEXT NOT NULL UNIQUE,
		token_hash TEXT UNIQUE,
		language_prefs TEXT NOT NULL DEFAULT 'mixed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_type TEXT NOT NULL DEFAULT 'text' CHECK (session_type IN ('text', 'video')),
		user_a UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_b UUID REFERENCES users(id) ON DELETE CASCADE,
		topic_tag TEXT NOT NULL DEFAULT 'random',
		language TEXT NOT NULL DEFAULT 'mixed',
		is_visitor BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'active', 'ended', 'flagged')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		CONSTRAINT chat_sessions_waiting_has_no_partner CHECK (status <> 'waiting' OR user_b IS NULL),
		CONSTRAINT chat_sessions_active_has_partner CHECK (status <> 'active' OR user_b IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_waiting ON chat_sessions (created_at) WHERE status = 'waiting'`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_a ON chat_sessions (user_a) WHERE status IN ('waiting', 'active')`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_b ON chat_sessions (user_b) WHERE status IN ('waiting', 'active')`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS session_likes (
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS fuse_moments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL UNIQUE REFERENCES chat_sessions(id) ON DELETE CASCADE,
		user_a UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_b UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		summary_text VARCHAR(140) NOT NULL,
		contact_exchanged BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contact_exchanges (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		fuse_moment_id UUID NOT NULL REFERENCES fuse_moments(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		whatsapp TEXT NOT NULL DEFAULT '',
		instagram TEXT NOT NULL DEFAULT '',
		telegram TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (fuse_moment_id, sender_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		reporter_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		reported_session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		category TEXT NOT NULL CHECK (category IN ('nudity', 'harassment', 'spam', 'underage', 'other')),
		evidence TEXT,
		reviewed BOOLEAN NOT NULL DEFAULT FALSE,
		action_taken TEXT NOT NULL DEFAULT 'none' CHECK (action_taken IN ('none', 'warning', 'ban')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		reviewed_at TIMESTAMPTZ
	)`,
}

// Migrate applies the schema. Every statement is idempotent so it runs on each startup.
func (db *DB) Migrate(ctx context.Context) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
