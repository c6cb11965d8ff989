// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
)

// MemoryStore is an in-process Store for tests and database-less runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Notification
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Notification)}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, ns []*Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range ns {
		if _, exists := s.items[n.ID]; exists {
			continue
		}
		s.items[n.ID] = clone(n)
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	return clone(n), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, userID string, f Filter) ([]Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Notification
	for _, n := range s.items {
		if n.UserID == userID && matches(n, f) {
			matched = append(matched, *clone(n))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []Notification{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

// MarkRead implements Store.
func (s *MemoryStore) MarkRead(_ context.Context, userID string, ids []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, id := range ids {
		n, ok := s.items[id]
		if !ok || n.UserID != userID || n.Read {
			continue
		}
		readAt := at
		n.Read, n.ReadAt = true, &readAt
		changed++
	}
	return changed, nil
}

// Dismiss implements Store.
func (s *MemoryStore) Dismiss(_ context.Context, userID, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return false, ErrNotFound
	}
	if n.Dismissed {
		return false, nil
	}
	dismissedAt := at
	n.Dismissed, n.DismissedAt = true, &dismissedAt
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// DeleteAll implements Store.
func (s *MemoryStore) DeleteAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, n := range s.items {
		if n.UserID == userID {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

// CountUnread implements Store.
func (s *MemoryStore) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, n := range s.items {
		if !n.ExpiresAt.IsZero() && !n.ExpiresAt.After(now) {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func matches(n *Notification, f Filter) bool {
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if len(f.Severities) > 0 && !containsPriority(f.Severities, n.Severity) {
		return false
	}
	if !f.IncludeDismissed && n.Dismissed {
		return false
	}
	return true
}

func containsPriority(ps []alerting.Priority, p alerting.Priority) bool {
	for _, candidate := range ps {
		if candidate == p {
			return true
		}
	}
	return false
}

func clone(n *Notification) *Notification {
	cp := *n
	if n.Trigger != nil {
		t := *n.Trigger
		cp.Trigger = &t
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	if n.DismissedAt != nil {
		t := *n.DismissedAt
		cp.DismissedAt = &t
	}
	return &cp
}

// StaticDirectory is an in-memory role membership table.
type StaticDirectory struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{}
}

// NewStaticDirectory creates an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{roles: make(map[string]map[string]struct{})}
}

// Add puts userID into role.
func (d *StaticDirectory) Add(role string, userIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.roles[role]
	if !ok {
		members = make(map[string]struct{})
		d.roles[role] = members
	}
	for _, id := range userIDs {
		members[id] = struct{}{}
	}
}

// Touch records that userID holds role. It matches the persistent
// directory's signature so either can sit behind the API.
func (d *StaticDirectory) Touch(_ context.Context, userID, role string) error {
	d.Add(role, userID)
	return nil
}

// UserIDsByRole implements Directory. IDs are returned sorted.
func (d *StaticDirectory) UserIDsByRole(_ context.Context, role string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.roles[role]))
	for id := range d.roles[role] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
