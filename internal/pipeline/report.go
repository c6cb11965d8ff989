// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
)

// ErrNoReport is returned when a user has no evaluated entry yet.
var ErrNoReport = errors.New("no deviation report")

// Report is the latest evaluation of one user, as served by
// GET /journals/deviation. One report per user; each run overwrites it.
type Report struct {
	UserID          string                    `json:"userId"`
	EntryID         string                    `json:"entryId,omitempty"`
	Deviation       deviation.Result          `json:"deviation"`
	Emotions        emotion.Vector            `json:"emotions"`
	Baseline        emotion.Vector            `json:"baseline"`
	SampleCount     int                       `json:"sampleCount"`
	Alerts          []alerting.Alert          `json:"alerts"`
	Recommendations []alerting.Recommendation `json:"recommendations"`
	Summary         string                    `json:"summary"`
	SupportiveNote  string                    `json:"supportiveNote"`
	CreatedAt       time.Time                 `json:"createdAt"`
}

// ReportStore keeps the latest report per user.
type ReportStore interface {
	SaveReport(ctx context.Context, r *Report) error
	// GetReport returns ErrNoReport when the user has none.
	GetReport(ctx context.Context, userID string) (*Report, error)
}

// MemoryReportStore is a ReportStore backed by a map.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemoryReportStore creates an empty store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[string]Report)}
}

// SaveReport implements ReportStore.
func (s *MemoryReportStore) SaveReport(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.UserID] = *r
	return nil
}

// GetReport implements ReportStore.
func (s *MemoryReportStore) GetReport(_ context.Context, userID string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[userID]
	if !ok {
		return nil, ErrNoReport
	}
	return &r, nil
}
