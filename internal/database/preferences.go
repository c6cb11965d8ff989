// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/notification"
)

// PreferenceStore implements notification.PreferenceStore.
type PreferenceStore struct {
	db *DB
}

var _ notification.PreferenceStore = (*PreferenceStore)(nil)

// Preferences returns the notification preference store.
func (db *DB) Preferences() *PreferenceStore { return &PreferenceStore{db: db} }

// GetPreferences implements notification.PreferenceStore.
func (s *PreferenceStore) GetPreferences(ctx context.Context, userID string) (p *notification.Preferences, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "notification_preferences")(&err)

	var (
		prefs notification.Preferences
		types string
	)
	err = s.db.conn.QueryRowContext(ctx,
		`SELECT user_id, enabled, types, daily_digest, re_engagement, updated_at
		FROM notification_preferences WHERE user_id = ?`, userID).
		Scan(&prefs.UserID, &prefs.Enabled, &types, &prefs.DailyDigest, &prefs.ReEngagement, &prefs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	prefs.Types = map[alerting.AlertType]bool{}
	if err = json.Unmarshal([]byte(types), &prefs.Types); err != nil {
		return nil, fmt.Errorf("failed to decode preference types: %w", err)
	}
	return &prefs, nil
}

// SavePreferences implements notification.PreferenceStore.
func (s *PreferenceStore) SavePreferences(ctx context.Context, p *notification.Preferences) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("upsert", "notification_preferences")(&err)

	types := p.Types
	if types == nil {
		types = map[alerting.AlertType]bool{}
	}
	raw, err := json.Marshal(types)
	if err != nil {
		return fmt.Errorf("failed to marshal preference types: %w", err)
	}

	return withConflictRetry(ctx, func(ctx context.Context) error {
		if _, execErr := s.db.conn.ExecContext(ctx,
			`INSERT INTO notification_preferences (user_id, enabled, types, daily_digest, re_engagement, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				enabled = excluded.enabled,
				types = excluded.types,
				daily_digest = excluded.daily_digest,
				re_engagement = excluded.re_engagement,
				updated_at = excluded.updated_at`,
			p.UserID, p.Enabled, string(raw), p.DailyDigest, p.ReEngagement, p.UpdatedAt.UTC()); execErr != nil {
			return fmt.Errorf("failed to save preferences: %w", execErr)
		}
		return nil
	})
}

// DigestSubscribers implements notification.PreferenceStore.
func (s *PreferenceStore) DigestSubscribers(ctx context.Context) (ids []string, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "notification_preferences")(&err)

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT user_id FROM notification_preferences WHERE enabled AND daily_digest ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest subscribers: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return ids, nil
}
