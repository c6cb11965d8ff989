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

	"github.com/tomtom215/moodlog/internal/pipeline"
)

// ReportStore implements pipeline.ReportStore. Status and score are kept in
// their own columns for ad hoc queries; the full report is a JSON document.
type ReportStore struct {
	db *DB
}

var _ pipeline.ReportStore = (*ReportStore)(nil)

// SaveReport implements pipeline.ReportStore.
func (s *ReportStore) SaveReport(ctx context.Context, r *pipeline.Report) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("upsert", "deviation_latest")(&err)

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal deviation report: %w", err)
	}
	return withConflictRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.conn.ExecContext(ctx, `
			INSERT INTO deviation_latest (user_id, entry_id, status, deviation_score, report, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				entry_id = EXCLUDED.entry_id,
				status = EXCLUDED.status,
				deviation_score = EXCLUDED.deviation_score,
				report = EXCLUDED.report,
				updated_at = EXCLUDED.updated_at`,
			r.UserID, r.EntryID, string(r.Deviation.Status), r.Deviation.DeviationScore, string(raw), r.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert deviation report: %w", err)
		}
		return nil
	})
}

// GetReport implements pipeline.ReportStore.
func (s *ReportStore) GetReport(ctx context.Context, userID string) (r *pipeline.Report, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "deviation_latest")(&err)

	var raw string
	err = s.db.conn.QueryRowContext(ctx, `SELECT report FROM deviation_latest WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deviation report: %w", err)
	}
	r = &pipeline.Report{}
	if err = json.Unmarshal([]byte(raw), r); err != nil {
		return nil, fmt.Errorf("failed to decode deviation report: %w", err)
	}
	return r, nil
}
