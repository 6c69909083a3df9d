package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const schemaVersion = 1

// schemaStatements create the tables the maintenance jobs read and write.
// Timestamps are unix milliseconds; flags are 0/1 integers. {{BIGINT}} is
// replaced by the dialect's 64-bit integer type.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		name             TEXT NOT NULL DEFAULT '',
		due_mode         INTEGER NOT NULL DEFAULT 0,
		due_date         {{BIGINT}},
		range_from       {{BIGINT}},
		range_to         {{BIGINT}},
		pet_id           TEXT,
		group_id         TEXT,
		requires_verification INTEGER NOT NULL DEFAULT 0,
		marked_as_done   INTEGER NOT NULL DEFAULT 0,
		marked_as_done_by TEXT,
		created_at       {{BIGINT}} NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_open_due ON tasks(marked_as_done, due_mode, due_date)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_open_range ON tasks(marked_as_done, due_mode, range_to)`,

	`CREATE TABLE IF NOT EXISTS group_invite_codes (
		code       TEXT PRIMARY KEY,
		group_id   TEXT NOT NULL,
		created_at {{BIGINT}} NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invite_codes_created ON group_invite_codes(created_at)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL,
		user_id  TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS pets (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		date_of_birth TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS pet_groups (
		pet_id   TEXT NOT NULL,
		group_id TEXT NOT NULL,
		PRIMARY KEY (pet_id, group_id)
	)`,

	`CREATE TABLE IF NOT EXISTS images (
		id                 TEXT PRIMARY KEY,
		storage_key        TEXT NOT NULL,
		task_id            TEXT,
		pet_id             TEXT,
		uploaded_at        {{BIGINT}} NOT NULL,
		storage_deleted_at {{BIGINT}}
	)`,

	`CREATE INDEX IF NOT EXISTS idx_images_uploaded ON images(uploaded_at)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id              TEXT PRIMARY KEY,
		recipient_id    TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		payload         TEXT NOT NULL DEFAULT '{}',
		is_read         INTEGER NOT NULL DEFAULT 0,
		created_at      {{BIGINT}} NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at)`,

	// Dispatch markers are kept after the notification row is swept so a
	// retention run never re-arms an idempotency key.
	`CREATE TABLE IF NOT EXISTS notification_dispatches (
		recipient_id    TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		notification_id TEXT NOT NULL,
		created_at      {{BIGINT}} NOT NULL,
		PRIMARY KEY (recipient_id, idempotency_key)
	)`,

	`CREATE TABLE IF NOT EXISTS job_leases (
		name       TEXT PRIMARY KEY,
		holder     TEXT NOT NULL,
		expires_at {{BIGINT}} NOT NULL
	)`,
}

// Migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("%s: create schema_version: %w", d.Name, err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("%s: read schema version: %w", d.Name, err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		stmt = strings.ReplaceAll(stmt, "{{BIGINT}}", d.BigInt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w\nstatement: %s", d.Name, err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx,
		d.Rebind("INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING"),
		schemaVersion,
	); err != nil {
		return fmt.Errorf("%s: record schema version: %w", d.Name, err)
	}

	return nil
}
