// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package inbox is the client-side reconciliation store for notifications
// that arrive both over REST and over the push channel.
//
// Records are keyed by notification id. Read and dismissed state only move
// forward: once a record is read, no later merge can make it unread again.
// The unread counter therefore never double counts a notification seen on
// both paths.
package inbox

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/moodlog/internal/notification"
)

// Inbox holds one user's notifications. Safe for concurrent use.
type Inbox struct {
	mu     sync.RWMutex
	items  map[string]notification.Notification
	unread int
	now    func() time.Time
}

// New creates an empty inbox.
func New() *Inbox {
	return &Inbox{items: make(map[string]notification.Notification), now: time.Now}
}

// WithClock replaces the time source used for locally applied reads.
func (b *Inbox) WithClock(now func() time.Time) *Inbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// ApplyPush records a pushed notification. It reports whether the record
// was new; the unread count grows by one only for a new unread record.
func (b *Inbox) ApplyPush(n notification.Notification) bool {
	if n.ID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.items[n.ID]
	b.upsert(n)
	return !exists
}

// MergeFetch folds a fetched page into the inbox and returns the number of
// records that were not known before.
func (b *Inbox) MergeFetch(ns []notification.Notification) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := 0
	for _, n := range ns {
		if n.ID == "" {
			continue
		}
		if _, exists := b.items[n.ID]; !exists {
			added++
		}
		b.upsert(n)
	}
	b.recount()
	return added
}

// ApplyRead marks one record read. Unknown ids are ignored.
func (b *Inbox) ApplyRead(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markRead(id, b.now().UTC())
}

// ApplyReadBatch marks every known id read and returns how many changed.
func (b *Inbox) ApplyReadBatch(ids []string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	at := b.now().UTC()
	changed := 0
	for _, id := range ids {
		if b.markRead(id, at) {
			changed++
		}
	}
	return changed
}

// Remove drops one record.
func (b *Inbox) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.items[id]
	if !ok {
		return false
	}
	if !n.Read {
		b.unread--
	}
	delete(b.items, id)
	return true
}

// Clear drops every record.
func (b *Inbox) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]notification.Notification)
	b.unread = 0
}

// List returns every record, newest first. Records created at the same
// instant are ordered by id descending, matching the server.
func (b *Inbox) List() []notification.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]notification.Notification, 0, len(b.items))
	for _, n := range b.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// UnreadCount returns the number of unread records.
func (b *Inbox) UnreadCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unread
}

// Len returns the number of records.
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// The methods below must be called with mu held.

func (b *Inbox) upsert(in notification.Notification) {
	cur, exists := b.items[in.ID]
	if !exists {
		b.items[in.ID] = in
		if !in.Read {
			b.unread++
		}
		return
	}

	merged := in
	if cur.Read && !in.Read {
		merged.Read, merged.ReadAt = true, cur.ReadAt
	}
	if cur.Dismissed && !in.Dismissed {
		merged.Dismissed, merged.DismissedAt = true, cur.DismissedAt
	}
	if !cur.Read && merged.Read {
		b.unread--
	}
	b.items[in.ID] = merged
}

func (b *Inbox) markRead(id string, at time.Time) bool {
	n, ok := b.items[id]
	if !ok || n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	b.items[id] = n
	b.unread--
	return true
}

func (b *Inbox) recount() {
	unread := 0
	for _, n := range b.items {
		if !n.Read {
			unread++
		}
	}
	b.unread = unread
}
