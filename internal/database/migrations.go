// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/moodlog/internal/logging"
)

// Migration is one versioned schema change. Migrations are append-only:
// never edit or remove one that has shipped.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name VARCHAR NOT NULL,
	description VARCHAR,
	applied_at TIMESTAMP NOT NULL
);
`

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "baselines",
			Description: "Per-user running average and append-only history",
			SQL: `
CREATE TABLE IF NOT EXISTS baselines (
	user_id VARCHAR PRIMARY KEY,
	emotions VARCHAR NOT NULL,
	sample_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE SEQUENCE IF NOT EXISTS baseline_history_seq START 1;
CREATE TABLE IF NOT EXISTS baseline_history (
	id BIGINT PRIMARY KEY DEFAULT nextval('baseline_history_seq'),
	user_id VARCHAR NOT NULL,
	entry_id VARCHAR NOT NULL DEFAULT '',
	emotions VARCHAR NOT NULL,
	dominant VARCHAR NOT NULL DEFAULT '',
	valence VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_baseline_history_user ON baseline_history (user_id, created_at);
`,
		},
		{
			Version:     2,
			Name:        "notifications",
			Description: "Persisted notifications with per-recipient read state",
			SQL: `
CREATE TABLE IF NOT EXISTS notifications (
	id VARCHAR PRIMARY KEY,
	user_id VARCHAR NOT NULL,
	type VARCHAR NOT NULL,
	severity INTEGER NOT NULL,
	title VARCHAR NOT NULL,
	message VARCHAR NOT NULL,
	description VARCHAR NOT NULL DEFAULT '',
	trigger_data VARCHAR,
	journal_id VARCHAR NOT NULL DEFAULT '',
	action VARCHAR NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT false,
	read_at TIMESTAMP,
	is_dismissed BOOLEAN NOT NULL DEFAULT false,
	dismissed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_expires ON notifications (expires_at);
`,
		},
		{
			Version:     3,
			Name:        "deviation_latest",
			Description: "Latest deviation report per user",
			SQL: `
CREATE TABLE IF NOT EXISTS deviation_latest (
	user_id VARCHAR PRIMARY KEY,
	entry_id VARCHAR NOT NULL DEFAULT '',
	status VARCHAR NOT NULL,
	deviation_score DOUBLE NOT NULL,
	report VARCHAR NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`,
		},
		{
			Version:     4,
			Name:        "user_roles",
			Description: "Role directory for broadcast recipient resolution",
			SQL: `
CREATE TABLE IF NOT EXISTS user_roles (
	user_id VARCHAR NOT NULL,
	role VARCHAR NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, role)
);
`,
		},
		{
			Version:     5,
			Name:        "baseline_entries",
			Description: "Entries already folded into a baseline, for retry-safe updates",
			SQL: `
CREATE TABLE IF NOT EXISTS baseline_entries (
	user_id VARCHAR NOT NULL,
	entry_id VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, entry_id)
);
`,
		},
		{
			Version:     6,
			Name:        "audit_events",
			Description: "Audit trail for baseline updates, broadcasts and preference changes",
			SQL: `
CREATE TABLE IF NOT EXISTS audit_events (
	id VARCHAR PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL,
	type VARCHAR NOT NULL,
	severity VARCHAR NOT NULL,
	outcome VARCHAR NOT NULL,
	actor_id VARCHAR NOT NULL,
	actor_type VARCHAR NOT NULL,
	actor_roles VARCHAR,
	target_id VARCHAR,
	target_type VARCHAR,
	source_ip VARCHAR,
	source_user_agent VARCHAR,
	action VARCHAR NOT NULL,
	description VARCHAR NOT NULL,
	metadata VARCHAR,
	correlation_id VARCHAR,
	request_id VARCHAR
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_target_id ON audit_events(target_id);
`,
		},
		{
			Version:     7,
			Name:        "notification_preferences",
			Description: "Per-user delivery preferences",
			SQL: `
CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id VARCHAR PRIMARY KEY,
	enabled BOOLEAN NOT NULL,
	types VARCHAR NOT NULL,
	daily_digest BOOLEAN NOT NULL,
	re_engagement BOOLEAN NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_preferences_digest ON notification_preferences(daily_digest);
`,
		},
	}
}

// runVersionedMigrations applies every migration not yet recorded in
// schema_migrations, in version order.
func (db *DB) runVersionedMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	newMigrations := 0
	for _, m := range migrations() {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
			m.Version, m.Name, m.Description, db.now().UTC()); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeWithLog(rows, "rows")

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	var version int
	if err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
