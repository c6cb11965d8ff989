// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package baseline maintains each user's running-average emotion vector.
//
// A baseline only ever changes by folding in one new vector at a time:
//
//	new[k] = (old[k]*n + v[k]) / (n+1)
//
// over the union of keys, so it never has to be recomputed from history.
// Updates for the same user are serialized in submission order.
package baseline

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/moodlog/internal/emotion"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by a Store when the user has no baseline yet.
	ErrNotFound = errors.New("baseline not found")
	// ErrDuplicateEntry is returned by SaveUpdate when the entry was already
	// folded into the user's baseline.
	ErrDuplicateEntry = errors.New("entry already folded into baseline")
)

// Baseline is the aggregate emotional state of one user.
type Baseline struct {
	UserID      string         `json:"userId"`
	Vector      emotion.Vector `json:"emotions"`
	SampleCount int            `json:"sampleCount"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// IsWarm reports whether the baseline has at least minSamples samples.
// A non-positive minSamples disables the warm-up period.
func (b *Baseline) IsWarm(minSamples int) bool {
	return minSamples <= 0 || b.SampleCount >= minSamples
}

// HistoryEntry is one vector folded into a baseline.
type HistoryEntry struct {
	UserID    string          `json:"userId"`
	EntryID   string          `json:"entryId,omitempty"`
	Vector    emotion.Vector  `json:"emotions"`
	Dominant  string          `json:"dominant,omitempty"`
	Valence   emotion.Valence `json:"valence"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store persists baselines and their history.
type Store interface {
	// GetBaseline returns ErrNotFound when the user has no baseline.
	GetBaseline(ctx context.Context, userID string) (*Baseline, error)
	// SaveUpdate writes b and appends entry as one unit: either both are
	// stored or neither is. A non-empty entry.EntryID may be folded once per
	// user; a second attempt returns ErrDuplicateEntry and changes nothing.
	SaveUpdate(ctx context.Context, b *Baseline, entry *HistoryEntry) error
	// HasEntry reports whether entryID was already folded for the user.
	HasEntry(ctx context.Context, userID, entryID string) (bool, error)
	// RecentHistory returns up to limit entries, newest first.
	RecentHistory(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
}
