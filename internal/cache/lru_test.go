// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLRU_GetAdd(t *testing.T) {
	c := NewLRU[int](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}
	c.Add("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("overwrite: got %v", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string](3, time.Minute)
	c.Add("a", "a")
	c.Add("b", "b")
	c.Add("c", "c")

	c.Get("a")
	c.Add("d", "d")

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to be present", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestLRU_Expiry(t *testing.T) {
	clk := newClock()
	c := NewLRU[bool](10, time.Minute).WithClock(clk.Now)

	c.Add("short", true)
	c.AddTTL("long", true, time.Hour)
	c.AddTTL("forever", true, 0)

	clk.Advance(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Error("short should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("long should still be live")
	}

	clk.Advance(48 * time.Hour)
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, ok := c.Get("forever"); !ok {
		t.Error("zero TTL entries never expire")
	}
}

func TestLRU_AddIfAbsent(t *testing.T) {
	clk := newClock()
	c := NewLRU[struct{}](10, time.Minute).WithClock(clk.Now)

	if c.AddIfAbsent("k", struct{}{}) {
		t.Error("first call must report absent")
	}
	if !c.AddIfAbsent("k", struct{}{}) {
		t.Error("second call must report present")
	}
	clk.Advance(time.Minute)
	if c.AddIfAbsent("k", struct{}{}) {
		t.Error("expired key must be treated as absent")
	}
}

func TestLRU_Remove(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Add("a", 1)
	if !c.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true")
	}
}

func TestLRU_ConcurrentAddIfAbsent(t *testing.T) {
	c := NewLRU[int](1000, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if !c.AddIfAbsent(fmt.Sprintf("k%d", j), j) {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firsts != 50 {
		t.Errorf("%d callers saw a key as new, want exactly 50", firsts)
	}
}
