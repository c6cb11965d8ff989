// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package audit

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLoggerWritesOnClose(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, DefaultConfig()).WithClock(func() time.Time { return t0 })

	logger.LogBaselineUpdate(context.Background(), "u1", "e1", alerting.Alert{
		Type:    alerting.TypeBaselineUpdate,
		Message: "Entry matches your baseline",
		Trigger: alerting.TriggerData{Kind: alerting.TypeBaselineUpdate, AlertReason: "within_baseline"},
	})
	logger.LogBroadcast(context.Background(), UserActor("admin-1", []string{"admin"}), Source{IPAddress: "10.0.0.1"}, BroadcastDetails{
		Role:       "user",
		Title:      "Maintenance",
		Severity:   "medium",
		Recipients: 3,
	})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	// A second Close is a no-op.
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 2 {
		t.Fatalf("stored = %d, want 2", store.Len())
	}
	events, err := store.Query(context.Background(), QueryFilter{Types: []EventType{EventTypeBaselineUpdate}})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("baseline events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID == "" || !e.Timestamp.Equal(t0) {
		t.Errorf("event id/timestamp not filled: %+v", e)
	}
	if e.Target == nil || e.Target.ID != "u1" || e.CorrelationID != "e1" {
		t.Errorf("event target/correlation = %+v / %q", e.Target, e.CorrelationID)
	}
	if e.Actor.Type != ActorSystem {
		t.Errorf("actor type = %q, want system", e.Actor.Type)
	}
	var trigger alerting.TriggerData
	if err := json.Unmarshal(e.Metadata, &trigger); err != nil {
		t.Fatal(err)
	}
	if trigger.AlertReason != "within_baseline" {
		t.Errorf("metadata reason = %q", trigger.AlertReason)
	}

	broadcasts, _ := store.Query(context.Background(), QueryFilter{ActorID: "admin-1"})
	if len(broadcasts) != 1 || broadcasts[0].Type != EventTypeBroadcast || broadcasts[0].Source.IPAddress != "10.0.0.1" {
		t.Errorf("broadcast events = %+v", broadcasts)
	}
}

func TestLoggerDisabled(t *testing.T) {
	store := NewMemoryStore(10)
	cfg := DefaultConfig()
	cfg.Enabled = false
	logger := NewLogger(store, cfg)
	logger.Log(&Event{Type: EventTypeBroadcast})
	_ = logger.Close()
	if store.Len() != 0 {
		t.Errorf("stored = %d, want 0", store.Len())
	}

	var nilLogger *Logger
	nilLogger.Log(&Event{Type: EventTypeBroadcast})
}

func TestLoggerPurge(t *testing.T) {
	store := NewMemoryStore(10)
	cfg := DefaultConfig()
	cfg.Retention = 24 * time.Hour
	logger := NewLogger(store, cfg)

	ctx := context.Background()
	for _, ts := range []time.Time{t0.Add(-48 * time.Hour), t0.Add(-25 * time.Hour), t0.Add(-time.Hour)} {
		if err := store.Save(ctx, &Event{ID: ts.String(), Timestamp: ts, Type: EventTypeBroadcast}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := logger.Purge(ctx, t0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || store.Len() != 1 {
		t.Errorf("purged %d, remaining %d; want 2, 1", n, store.Len())
	}
	_ = logger.Close()
}

func TestSourceFromRequest(t *testing.T) {
	r := httptest.NewRequest("PUT", "/api/v1/notifications/preferences", nil)
	r.RemoteAddr = "192.0.2.7"
	r.Header.Set("User-Agent", "moodlog-test")
	src := SourceFromRequest(r)
	if src.IPAddress != "192.0.2.7" || src.UserAgent != "moodlog-test" {
		t.Errorf("source = %+v", src)
	}
}
