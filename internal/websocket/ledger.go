// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/moodlog/internal/cache"
	"github.com/tomtom215/moodlog/internal/metrics"
)

// ErrLedgerClosed is returned after Close.
var ErrLedgerClosed = errors.New("delivery ledger is closed")

// DeliveryLedger records which notifications each session has been sent.
type DeliveryLedger interface {
	// CheckAndRecord atomically records (sessionKey, id) and reports whether
	// this is the first time the pair was seen.
	CheckAndRecord(sessionKey, id string) (first bool, err error)
	Close() error
}

// Compactor is implemented by ledgers that need periodic cleanup of
// expired records.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Deduper is implemented by payloads that must reach a session at most once.
type Deduper interface {
	DedupKey() string
}

func ledgerKey(sessionKey, id string) string {
	return sessionKey + "\x00" + id
}

// MemoryLedger keeps delivery records in a bounded LRU. Records are lost on
// restart and evicted first-in when capacity is reached.
type MemoryLedger struct {
	seen *cache.LRU[struct{}]
}

// NewMemoryLedger creates a ledger holding up to capacity records for ttl.
func NewMemoryLedger(capacity int, ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{seen: cache.NewLRU[struct{}](capacity, ttl)}
}

// CheckAndRecord implements DeliveryLedger.
func (l *MemoryLedger) CheckAndRecord(sessionKey, id string) (bool, error) {
	if present := l.seen.AddIfAbsent(ledgerKey(sessionKey, id), struct{}{}); present {
		metrics.RecordLedger("memory", "duplicate")
		return false, nil
	}
	metrics.RecordLedger("memory", "recorded")
	return true, nil
}

// Sweep drops expired records.
func (l *MemoryLedger) Sweep() int {
	return l.seen.Sweep()
}

// Compact implements Compactor.
func (l *MemoryLedger) Compact(context.Context) error {
	l.Sweep()
	return nil
}

// Close implements DeliveryLedger.
func (l *MemoryLedger) Close() error { return nil }

// BadgerLedger persists delivery records in BadgerDB with a TTL, so
// at-most-once delivery survives a restart.
type BadgerLedger struct {
	db     *badger.DB
	ttl    time.Duration
	prefix []byte
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerLedger opens (or creates) a Badger database at path and wraps
// it. With inMemory set, path is ignored.
func OpenBadgerLedger(path string, inMemory bool, ttl time.Duration) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	l := NewBadgerLedger(db, ttl)
	l.ownsDB = true
	return l, nil
}

// NewBadgerLedger wraps a shared Badger database. The caller keeps
// ownership of db.
func NewBadgerLedger(db *badger.DB, ttl time.Duration) *BadgerLedger {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &BadgerLedger{db: db, ttl: ttl, prefix: []byte("delivered:")}
}

func (l *BadgerLedger) makeKey(sessionKey, id string) []byte {
	key := make([]byte, 0, len(l.prefix)+len(sessionKey)+1+len(id))
	key = append(key, l.prefix...)
	return append(key, ledgerKey(sessionKey, id)...)
}

// CheckAndRecord implements DeliveryLedger. A write conflict means a
// concurrent transaction recorded the same pair, so it counts as a
// duplicate.
func (l *BadgerLedger) CheckAndRecord(sessionKey, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		metrics.RecordLedger("badger", "error")
		return false, ErrLedgerClosed
	}

	key := l.makeKey(sessionKey, id)
	first := false
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		first = true
		return txn.SetEntry(badger.NewEntry(key, nil).WithTTL(l.ttl))
	})

	switch {
	case errors.Is(err, badger.ErrConflict):
		metrics.RecordLedger("badger", "duplicate")
		return false, nil
	case err != nil:
		metrics.RecordLedger("badger", "error")
		return false, err
	case first:
		metrics.RecordLedger("badger", "recorded")
	default:
		metrics.RecordLedger("badger", "duplicate")
	}
	return first, nil
}

// Close implements DeliveryLedger. A shared database is left open.
func (l *BadgerLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.ownsDB {
		return l.db.Close()
	}
	return nil
}

// Compact implements Compactor by running value log GC until Badger has
// nothing left to rewrite. Expired records are dropped by Badger itself.
func (l *BadgerLedger) Compact(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLedgerClosed
	}

	for ctx.Err() == nil {
		err := l.db.RunValueLogGC(0.5)
		switch {
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		case err != nil:
			return fmt.Errorf("delivery ledger gc: %w", err)
		}
	}
	return ctx.Err()
}
