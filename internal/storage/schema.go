package storage

import (
	"context"
	"fmt"
)

// Schema for the notification rows and the per-user unread counters. The
// counter table is maintained transactionally with the row writes so the
// unread total is always readable with a single-row lookup, while the rows
// themselves keep the count re-derivable.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id           TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		actor_id     TEXT NOT NULL DEFAULT '',
		kind         TEXT NOT NULL,
		subject_id   TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		read_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created
		ON notifications (recipient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread
		ON notifications (recipient_id) WHERE read_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS unread_counts (
		recipient_id TEXT PRIMARY KEY,
		count        BIGINT NOT NULL DEFAULT 0 CHECK (count >= 0)
	)`,
}

func (db *DB) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
