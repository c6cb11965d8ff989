// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package baseline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests. Contents are lost on
// restart; the server always uses the DuckDB store.
type MemoryStore struct {
	mu        sync.RWMutex
	baselines map[string]*Baseline
	history   map[string][]HistoryEntry
	entries   map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		baselines: make(map[string]*Baseline),
		history:   make(map[string][]HistoryEntry),
		entries:   make(map[string]struct{}),
	}
}

// GetBaseline implements Store.
func (s *MemoryStore) GetBaseline(_ context.Context, userID string) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	cp.Vector = b.Vector.Clone()
	return &cp, nil
}

// SaveBaseline replaces the user's baseline without touching history. It
// seeds fixtures in tests.
func (s *MemoryStore) SaveBaseline(_ context.Context, b *Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putBaseline(b)
	return nil
}

// SaveUpdate implements Store.
func (s *MemoryStore) SaveUpdate(_ context.Context, b *Baseline, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.EntryID != "" {
		key := entryKey(entry.UserID, entry.EntryID)
		if _, dup := s.entries[key]; dup {
			return ErrDuplicateEntry
		}
		s.entries[key] = struct{}{}
	}
	s.putBaseline(b)
	cp := *entry
	cp.Vector = entry.Vector.Clone()
	s.history[entry.UserID] = append(s.history[entry.UserID], cp)
	return nil
}

// HasEntry implements Store.
func (s *MemoryStore) HasEntry(_ context.Context, userID, entryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[entryKey(userID, entryID)]
	return ok, nil
}

func (s *MemoryStore) putBaseline(b *Baseline) {
	cp := *b
	cp.Vector = b.Vector.Clone()
	s.baselines[b.UserID] = &cp
}

func entryKey(userID, entryID string) string {
	return userID + "\x00" + entryID
}

// RecentHistory implements Store.
func (s *MemoryStore) RecentHistory(_ context.Context, userID string, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.history[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]HistoryEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Inactive returns up to limit baselines last updated before cutoff, least
// recently active first.
func (s *MemoryStore) Inactive(_ context.Context, cutoff time.Time, limit int) ([]Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Baseline, 0)
	for _, b := range s.baselines {
		if b.UpdatedAt.Before(cutoff) {
			cp := *b
			cp.Vector = b.Vector.Clone()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
