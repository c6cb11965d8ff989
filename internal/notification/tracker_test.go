// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
)

func seed(t *testing.T, d *Dispatcher, userID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sent, err := d.Dispatch(context.Background(), sample(userID))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sent.ID)
	}
	return ids
}

func TestMarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pusher := &recordingPusher{}
	d := NewDispatcher(store, pusher, nil, 0).WithClock(newTicker().now)
	tr := NewTracker(store, pusher, 0)

	ids := seed(t, d, "u1", 3)

	ev, err := tr.MarkRead(ctx, "u1", ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if ev.UnreadCount != 2 {
		t.Errorf("unread after first mark = %d, want 2", ev.UnreadCount)
	}
	first, _ := tr.Get(ctx, "u1", ids[0])

	ev, err = tr.MarkRead(ctx, "u1", ids[0])
	if err != nil {
		t.Fatalf("second MarkRead must not fail: %v", err)
	}
	if ev.UnreadCount != 2 {
		t.Errorf("unread after second mark = %d, want 2", ev.UnreadCount)
	}
	second, _ := tr.Get(ctx, "u1", ids[0])
	if !second.Read || !second.ReadAt.Equal(*first.ReadAt) {
		t.Error("readAt must be set once")
	}
	if pusher.count(EventRead) != 1 {
		t.Errorf("read events = %d, want 1", pusher.count(EventRead))
	}

	if _, err := tr.MarkRead(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
	if _, err := tr.MarkRead(ctx, "u2", ids[1]); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign id err = %v", err)
	}
}

func TestMarkManyRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pusher := &recordingPusher{}
	d := NewDispatcher(store, pusher, nil, 0)
	tr := NewTracker(store, pusher, 0)

	ids := seed(t, d, "u1", 4)
	other := seed(t, d, "u2", 1)

	ev, err := tr.MarkManyRead(ctx, "u1", []string{ids[0], ids[1], ids[1], other[0], "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Changed != 2 || ev.UnreadCount != 2 {
		t.Errorf("event = %+v, want changed 2 unread 2", ev)
	}
	if unread, _ := tr.UnreadCount(ctx, "u2"); unread != 1 {
		t.Error("another user's notification must not be marked")
	}
	if pusher.count(EventReadBatch) != 1 {
		t.Errorf("batch events = %d", pusher.count(EventReadBatch))
	}

	ev, _ = tr.MarkManyRead(ctx, "u1", nil)
	if ev.Changed != 0 || ev.UnreadCount != 2 {
		t.Errorf("empty batch = %+v", ev)
	}
}

func TestDismissAndFetch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, nil, 0).WithClock(newTicker().now)
	tr := NewTracker(store, nil, 0)

	ids := seed(t, d, "u1", 3)

	n, err := tr.Dismiss(ctx, "u1", ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if !n.Dismissed || n.DismissedAt == nil || n.Read {
		t.Errorf("dismissed = %+v", n)
	}
	if _, err := tr.Dismiss(ctx, "u1", ids[1]); err != nil {
		t.Errorf("dismiss twice: %v", err)
	}
	if _, err := tr.Dismiss(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("dismiss unknown err = %v", err)
	}

	page, _ := tr.Fetch(ctx, "u1", Filter{})
	if page.Total != 2 {
		t.Errorf("active total = %d, want 2", page.Total)
	}
	if page.Items[0].ID != ids[2] || page.Items[1].ID != ids[0] {
		t.Error("fetch must be newest first")
	}

	page, _ = tr.Fetch(ctx, "u1", Filter{IncludeDismissed: true, Limit: 1, Offset: 1})
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].ID != ids[1] {
		t.Errorf("paged fetch = %+v", page)
	}

	// Dismissed but unread still counts as unread.
	if unread, _ := tr.UnreadCount(ctx, "u1"); unread != 3 {
		t.Errorf("unread = %d, want 3", unread)
	}
}

func TestFetchFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, nil, 0).WithClock(newTicker().now)
	tr := NewTracker(store, nil, 0)

	for _, p := range []alerting.Priority{alerting.PriorityInfo, alerting.PriorityHigh, alerting.PriorityCritical, alerting.PriorityCritical} {
		n := sample("u1")
		n.Severity = p
		if p == alerting.PriorityInfo {
			n.Type = alerting.TypePositiveMilestone
		}
		if _, err := d.Dispatch(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	read := true
	tests := []struct {
		name string
		f    Filter
		want int
	}{
		{"all", Filter{}, 4},
		{"by type", Filter{Type: alerting.TypePositiveMilestone}, 1},
		{"by severity", Filter{Severities: []alerting.Priority{alerting.PriorityCritical}}, 2},
		{"read only", Filter{Read: &read}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := tr.Fetch(ctx, "u1", tt.f)
			if err != nil {
				t.Fatal(err)
			}
			if page.Total != tt.want {
				t.Errorf("total = %d, want %d", page.Total, tt.want)
			}
		})
	}
}

func TestCritical(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, nil, 0).WithClock(newTicker().now)
	tr := NewTracker(store, nil, 0)

	var ids []string
	for i := 0; i < 8; i++ {
		n := sample("u1")
		n.Severity = alerting.PriorityCritical
		sent, _ := d.Dispatch(ctx, n)
		ids = append(ids, sent.ID)
	}
	low := sample("u1")
	low.Severity = alerting.PriorityMedium
	_, _ = d.Dispatch(ctx, low)

	_, _ = tr.MarkRead(ctx, "u1", ids[7])
	_, _ = tr.Dismiss(ctx, "u1", ids[6])

	got, err := tr.Critical(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultCriticalLimit {
		t.Fatalf("len = %d, want %d", len(got), DefaultCriticalLimit)
	}
	if got[0].ID != ids[5] {
		t.Errorf("newest critical = %s, want %s", got[0].ID, ids[5])
	}
}

func TestDeleteAndClearAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, nil, 0)
	tr := NewTracker(store, nil, 0)

	ids := seed(t, d, "u1", 3)
	seed(t, d, "u2", 2)

	if err := tr.Delete(ctx, "u2", ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}
	if err := tr.Delete(ctx, "u1", ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := tr.Delete(ctx, "u1", ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted is terminal, err = %v", err)
	}

	n, err := tr.ClearAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Errorf("ClearAll() = (%d, %v), want (2, nil)", n, err)
	}
	if unread, _ := tr.UnreadCount(ctx, "u2"); unread != 2 {
		t.Error("ClearAll must only touch the caller's notifications")
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clk := newTicker()
	d := NewDispatcher(store, nil, nil, time.Hour).WithClock(clk.now)
	tr := NewTracker(store, nil, 0)

	seed(t, d, "u1", 2)

	if n, _ := tr.PurgeExpired(ctx, clk.now()); n != 0 {
		t.Errorf("purged %d fresh notifications", n)
	}
	if n, _ := tr.PurgeExpired(ctx, clk.now().Add(2*time.Hour)); n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
}
