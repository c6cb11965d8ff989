// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package cache provides the bounded in-process TTL cache shared by the
// delivery ledger and the alert cooldown tracker.
package cache

import (
	"sync"
	"time"
)

type node[V any] struct {
	key       string
	value     V
	prev      *node[V]
	next      *node[V]
	expiresAt time.Time
}

// LRU is a thread-safe least recently used cache with per-entry expiry.
// Expired entries are removed lazily on access or by Sweep.
//
// Zero TTL on AddTTL means the entry never expires; capacity still bounds it.
type LRU[V any] struct {
	mu sync.Mutex

	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	items map[string]*node[V]
	// head.next is the most recently used entry, tail.prev the least.
	head *node[V]
	tail *node[V]

	hits      int64
	misses    int64
	evictions int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// NewLRU creates a cache holding at most capacity entries, each living for
// ttl unless added with AddTTL.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = 10000
	}
	c := &LRU[V]{
		capacity:   capacity,
		defaultTTL: ttl,
		now:        time.Now,
		items:      make(map[string]*node[V], capacity),
		head:       &node[V]{},
		tail:       &node[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// WithClock replaces the time source. Intended for tests.
func (c *LRU[V]) WithClock(now func() time.Time) *LRU[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.live(key)
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.moveToFront(n)
	c.hits++
	return n.value, true
}

// Add stores value under key with the default TTL.
func (c *LRU[V]) Add(key string, value V) {
	c.AddTTL(key, value, c.defaultTTL)
}

// AddTTL stores value under key with its own TTL.
func (c *LRU[V]) AddTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
}

// AddIfAbsent stores value only when key is missing or expired. It returns
// true when the key was already present, which makes it a check-and-record
// primitive for deduplication.
func (c *LRU[V]) AddIfAbsent(key string, value V) (present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.live(key); ok {
		c.moveToFront(n)
		c.hits++
		return true
	}
	c.misses++
	c.put(key, value, c.defaultTTL)
	return false
}

// Remove deletes key and reports whether it was present.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.unlink(n)
		return true
	}
	return false
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops every expired entry and returns how many were removed.
func (c *LRU[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for n := c.tail.prev; n != c.head; {
		prev := n.prev
		if c.expired(n, now) {
			c.unlink(n)
			removed++
		}
		n = prev
	}
	return removed
}

// Stats returns the current counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: len(c.items)}
}

// The methods below must be called with mu held.

func (c *LRU[V]) live(key string) (*node[V], bool) {
	n, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.expired(n, c.now()) {
		c.unlink(n)
		return nil, false
	}
	return n, true
}

func (c *LRU[V]) put(key string, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if n, ok := c.items[key]; ok {
		n.value = value
		n.expiresAt = expiresAt
		c.moveToFront(n)
		return
	}

	n := &node[V]{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(n)
	c.items[key] = n
	for len(c.items) > c.capacity {
		c.unlink(c.tail.prev)
		c.evictions++
	}
}

func (c *LRU[V]) expired(n *node[V], now time.Time) bool {
	return !n.expiresAt.IsZero() && !now.Before(n.expiresAt)
}

func (c *LRU[V]) pushFront(n *node[V]) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU[V]) moveToFront(n *node[V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	c.pushFront(n)
}

func (c *LRU[V]) unlink(n *node[V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(c.items, n.key)
}
