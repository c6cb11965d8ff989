// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLedgers(t *testing.T) {
	ledgers := map[string]func(t *testing.T) DeliveryLedger{
		"memory": func(*testing.T) DeliveryLedger { return NewMemoryLedger(100, time.Hour) },
		"badger": func(t *testing.T) DeliveryLedger { return NewBadgerLedger(openTestBadger(t), time.Hour) },
	}

	for name, open := range ledgers {
		t.Run(name, func(t *testing.T) {
			l := open(t)

			first, err := l.CheckAndRecord("tab-1", "n1")
			if err != nil || !first {
				t.Fatalf("first record = %v, %v", first, err)
			}
			first, err = l.CheckAndRecord("tab-1", "n1")
			if err != nil || first {
				t.Fatalf("repeat record = %v, %v", first, err)
			}
			if first, _ := l.CheckAndRecord("tab-2", "n1"); !first {
				t.Error("other session should be independent")
			}
			if first, _ := l.CheckAndRecord("tab-1", "n2"); !first {
				t.Error("other notification should be independent")
			}
		})
	}
}

func TestLedgerConcurrentCheckAndRecord(t *testing.T) {
	ledgers := map[string]DeliveryLedger{
		"memory": NewMemoryLedger(100, time.Hour),
		"badger": NewBadgerLedger(openTestBadger(t), time.Hour),
	}
	for name, l := range ledgers {
		t.Run(name, func(t *testing.T) {
			var firsts atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					first, err := l.CheckAndRecord("tab", "same")
					if err != nil {
						t.Errorf("CheckAndRecord() error = %v", err)
						return
					}
					if first {
						firsts.Add(1)
					}
				}()
			}
			wg.Wait()
			if got := firsts.Load(); got != 1 {
				t.Errorf("%d callers saw first delivery, want 1", got)
			}
		})
	}
}

func TestMemoryLedgerSweep(t *testing.T) {
	l := NewMemoryLedger(10, time.Millisecond)
	if first, _ := l.CheckAndRecord("s", "n"); !first {
		t.Fatal("want first")
	}
	time.Sleep(5 * time.Millisecond)
	if n := l.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if first, _ := l.CheckAndRecord("s", "n"); !first {
		t.Error("expired record should allow redelivery")
	}
}

func TestBadgerLedgerClose(t *testing.T) {
	l, err := OpenBadgerLedger("", true, time.Hour)
	if err != nil {
		t.Fatalf("OpenBadgerLedger() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := l.CheckAndRecord("s", "n"); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("CheckAndRecord after close = %v, want ErrLedgerClosed", err)
	}
}

func TestBadgerLedgerSharedDBStaysOpen(t *testing.T) {
	db := openTestBadger(t)
	l := NewBadgerLedger(db, 0)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if db.IsClosed() {
		t.Error("shared database should stay open")
	}
}

func TestLedgerCompact(t *testing.T) {
	ledgers := map[string]Compactor{
		"memory": NewMemoryLedger(10, time.Hour),
		"badger": NewBadgerLedger(openTestBadger(t), time.Hour),
	}
	for name, l := range ledgers {
		t.Run(name, func(t *testing.T) {
			if err := l.Compact(context.Background()); err != nil {
				t.Errorf("Compact() error = %v", err)
			}
		})
	}

	closed, err := OpenBadgerLedger("", true, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	_ = closed.Close()
	if err := closed.Compact(context.Background()); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("Compact after close = %v, want ErrLedgerClosed", err)
	}
}
