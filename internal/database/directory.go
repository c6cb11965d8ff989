// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/moodlog/internal/cache"
	"github.com/tomtom215/moodlog/internal/notification"
)

// directoryRefresh is how often one (user, role) pair is rewritten.
const directoryRefresh = time.Hour

// UserDirectory records which users hold which role, as seen on
// authenticated requests, and resolves broadcast recipients from it.
// Account management lives outside this service, so the directory only
// knows users that have called the API at least once.
type UserDirectory struct {
	db     *DB
	recent *cache.LRU[struct{}]
}

var _ notification.Directory = (*UserDirectory)(nil)

// Directory returns the role directory.
func (db *DB) Directory() *UserDirectory {
	return &UserDirectory{db: db, recent: cache.NewLRU[struct{}](50000, directoryRefresh)}
}

// Touch records that userID holds role. Repeat calls within an hour are
// answered from memory without a write.
func (d *UserDirectory) Touch(ctx context.Context, userID, role string) (err error) {
	key := role + "\x00" + userID
	if present := d.recent.AddIfAbsent(key, struct{}{}); present {
		return nil
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("upsert", "user_roles")(&err)

	err = withConflictRetry(ctx, func(ctx context.Context) error {
		_, execErr := d.db.conn.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role, last_seen) VALUES (?, ?, ?)
			ON CONFLICT (user_id, role) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
			userID, role, d.db.now().UTC())
		return execErr
	})
	if err != nil {
		d.recent.Remove(key)
		return fmt.Errorf("failed to record user role: %w", err)
	}
	return nil
}

// UserIDsByRole implements notification.Directory.
func (d *UserDirectory) UserIDsByRole(ctx context.Context, role string) (ids []string, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "user_roles")(&err)

	rows, err := d.db.conn.QueryContext(ctx, `SELECT user_id FROM user_roles WHERE role = ? ORDER BY user_id`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer closeWithLog(rows, "rows")

	ids = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
