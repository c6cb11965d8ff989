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
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/baseline"
	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
)

// BaselineStore implements baseline.Store.
type BaselineStore struct {
	db *DB
}

var _ baseline.Store = (*BaselineStore)(nil)

// GetBaseline implements baseline.Store.
func (s *BaselineStore) GetBaseline(ctx context.Context, userID string) (b *baseline.Baseline, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "baselines")(&err)

	var raw string
	b = &baseline.Baseline{UserID: userID}
	err = s.db.conn.QueryRowContext(ctx,
		`SELECT emotions, sample_count, created_at, updated_at FROM baselines WHERE user_id = ?`, userID).
		Scan(&raw, &b.SampleCount, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, baseline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}
	if b.Vector, err = decodeVector(raw); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveUpdate implements baseline.Store. The entry marker, the baseline
// upsert and the history row are written in one transaction.
func (s *BaselineStore) SaveUpdate(ctx context.Context, b *baseline.Baseline, entry *baseline.HistoryEntry) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("upsert", "baselines")(&err)

	vec, err := json.Marshal(b.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline vector: %w", err)
	}
	hist, err := json.Marshal(entry.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal history vector: %w", err)
	}
	return withConflictRetry(ctx, func(ctx context.Context) error {
		return s.saveUpdateTx(ctx, b, entry, string(vec), string(hist))
	})
}

func (s *BaselineStore) saveUpdateTx(ctx context.Context, b *baseline.Baseline, entry *baseline.HistoryEntry, vec, hist string) (err error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	if entry.EntryID != "" {
		var seen int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM baseline_entries WHERE user_id = ? AND entry_id = ?`,
			entry.UserID, entry.EntryID).Scan(&seen); err != nil {
			return fmt.Errorf("failed to check baseline entry: %w", err)
		}
		if seen > 0 {
			err = baseline.ErrDuplicateEntry
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO baseline_entries (user_id, entry_id, created_at) VALUES (?, ?, ?)`,
			entry.UserID, entry.EntryID, entry.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to record baseline entry: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO baselines (user_id, emotions, sample_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			emotions = EXCLUDED.emotions,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at`,
		b.UserID, vec, b.SampleCount, b.CreatedAt.UTC(), b.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO baseline_history (user_id, entry_id, emotions, dominant, valence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.EntryID, hist, entry.Dominant, string(entry.Valence), entry.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert baseline history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baseline update: %w", err)
	}
	return nil
}

// HasEntry implements baseline.Store.
func (s *BaselineStore) HasEntry(ctx context.Context, userID, entryID string) (seen bool, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "baseline_entries")(&err)

	var n int
	if err = s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM baseline_entries WHERE user_id = ? AND entry_id = ?`, userID, entryID).
		Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query baseline entry: %w", err)
	}
	return n > 0, nil
}

// RecentHistory implements baseline.Store.
func (s *BaselineStore) RecentHistory(ctx context.Context, userID string, limit int) (entries []baseline.HistoryEntry, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "baseline_history")(&err)

	if limit <= 0 {
		return []baseline.HistoryEntry{}, nil
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT entry_id, emotions, dominant, valence, created_at
		FROM baseline_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline history: %w", err)
	}
	defer closeWithLog(rows, "rows")

	entries = make([]baseline.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e       = baseline.HistoryEntry{UserID: userID}
			raw     string
			valence string
		)
		if err := rows.Scan(&e.EntryID, &raw, &e.Dominant, &valence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan baseline history: %w", err)
		}
		e.Valence = emotion.Valence(valence)
		if e.Vector, err = decodeVector(raw); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Inactive returns up to limit baselines last updated before cutoff, least
// recently active first.
func (s *BaselineStore) Inactive(ctx context.Context, cutoff time.Time, limit int) (out []baseline.Baseline, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "baselines")(&err)

	if limit <= 0 {
		return []baseline.Baseline{}, nil
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT user_id, emotions, sample_count, created_at, updated_at
		FROM baselines
		WHERE updated_at < ?
		ORDER BY updated_at, user_id
		LIMIT ?`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query inactive baselines: %w", err)
	}
	defer closeWithLog(rows, "rows")

	out = make([]baseline.Baseline, 0)
	for rows.Next() {
		var (
			b   baseline.Baseline
			raw string
		)
		if err := rows.Scan(&b.UserID, &raw, &b.SampleCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		if b.Vector, err = decodeVector(raw); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func decodeVector(raw string) (emotion.Vector, error) {
	v := emotion.Vector{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to decode emotion vector: %w", err)
	}
	return v, nil
}
