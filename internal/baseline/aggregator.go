// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
)

// Aggregator folds sanitized vectors into per-user baselines.
type Aggregator struct {
	store    Store
	clusters *emotion.Clusters
	locks    *KeyedMutex
	now      func() time.Time
}

// NewAggregator creates an aggregator over store. clusters is used to tag
// history entries with the dominant emotion's valence.
func NewAggregator(store Store, clusters *emotion.Clusters) *Aggregator {
	if clusters == nil {
		clusters = emotion.DefaultClusters()
	}
	return &Aggregator{
		store:    store,
		clusters: clusters,
		locks:    NewKeyedMutex(),
		now:      time.Now,
	}
}

// Update folds v into the user's baseline and returns the result.
//
// An empty v leaves the baseline untouched (sample count included); a user
// without a baseline then gets an empty zero-count baseline that is not
// persisted. The first non-empty vector becomes the baseline with n = 1.
//
// A non-empty entryID is folded at most once per user. Updating with an
// entry that was already folded returns the stored baseline unchanged, so a
// caller may retry a failed run with the same entry.
//
// The updated baseline and its history entry are persisted together before
// Update returns. Storage errors are returned to the caller: an unpersisted
// update would skew every later comparison.
func (a *Aggregator) Update(ctx context.Context, userID, entryID string, v emotion.Vector) (*Baseline, error) {
	unlock := a.locks.Lock(userID)
	defer unlock()

	current, err := a.store.GetBaseline(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load baseline for %s: %w", userID, err)
	}

	if v.IsEmpty() {
		if current == nil {
			return &Baseline{UserID: userID, Vector: emotion.Vector{}}, nil
		}
		logging.Ctx(ctx).Debug().Str("user_id", userID).Msg("Empty emotion vector, baseline unchanged")
		return current, nil
	}

	if entryID != "" && current != nil {
		seen, err := a.store.HasEntry(ctx, userID, entryID)
		if err != nil {
			return nil, fmt.Errorf("check entry %s for %s: %w", entryID, userID, err)
		}
		if seen {
			logging.Ctx(ctx).Info().
				Str("user_id", userID).
				Str("entry_id", entryID).
				Msg("Entry already folded into baseline, reusing stored state")
			return current, nil
		}
	}

	now := a.now().UTC()
	next := Fold(current, v)
	next.UserID = userID
	next.UpdatedAt = now
	if current == nil {
		next.CreatedAt = now
	}

	dominant, _, _ := v.Dominant()
	entry := &HistoryEntry{
		UserID:    userID,
		EntryID:   entryID,
		Vector:    v.Clone(),
		Dominant:  dominant,
		Valence:   a.clusters.Valence(dominant),
		CreatedAt: now,
	}
	if dominant == "" {
		entry.Valence = emotion.ValenceNeutral
	}

	if err := a.store.SaveUpdate(ctx, next, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return a.storedAfterDuplicate(ctx, userID)
		}
		return nil, fmt.Errorf("save baseline for %s: %w", userID, err)
	}

	logging.Ctx(ctx).Debug().
		Str("user_id", userID).
		Int("sample_count", next.SampleCount).
		Msg("Baseline updated")

	return next, nil
}

// storedAfterDuplicate reloads the baseline once another writer has folded
// the same entry.
func (a *Aggregator) storedAfterDuplicate(ctx context.Context, userID string) (*Baseline, error) {
	b, err := a.store.GetBaseline(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload baseline for %s: %w", userID, err)
	}
	return b, nil
}

// Get returns the user's baseline, or ErrNotFound.
func (a *Aggregator) Get(ctx context.Context, userID string) (*Baseline, error) {
	return a.store.GetBaseline(ctx, userID)
}

// RecentHistory returns the user's newest history entries.
func (a *Aggregator) RecentHistory(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	return a.store.RecentHistory(ctx, userID, limit)
}

// Fold returns a new baseline with v folded into current using the
// incremental mean. A nil or zero-count current yields v itself with n = 1.
// current is not modified.
func Fold(current *Baseline, v emotion.Vector) *Baseline {
	if current == nil || current.SampleCount <= 0 {
		return &Baseline{Vector: v.Clone(), SampleCount: 1}
	}

	n := float64(current.SampleCount)
	merged := make(emotion.Vector, len(current.Vector)+len(v))
	for _, k := range emotion.UnionKeys(current.Vector, v) {
		merged[k] = (current.Vector[k]*n + v[k]) / (n + 1)
	}

	return &Baseline{
		UserID:      current.UserID,
		Vector:      merged,
		SampleCount: current.SampleCount + 1,
		CreatedAt:   current.CreatedAt,
		UpdatedAt:   current.UpdatedAt,
	}
}
