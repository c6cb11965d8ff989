// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/moodlog/internal/alerting"
)

type brokenPreferences struct {
	*MemoryPreferenceStore
}

func (brokenPreferences) GetPreferences(context.Context, string) (*Preferences, error) {
	return nil, errors.New("connection reset")
}

func TestPreferencesAllows(t *testing.T) {
	defaults := DefaultTypes(false)
	off := false
	tests := []struct {
		name     string
		prefs    Preferences
		typ      alerting.AlertType
		priority alerting.Priority
		want     bool
	}{
		{"default on", DefaultPreferences("u"), alerting.TypeSpike, alerting.PriorityHigh, true},
		{"milestone on by default", DefaultPreferences("u"), alerting.TypePositiveMilestone, alerting.PriorityInfo, true},
		{"baseline update off by default", DefaultPreferences("u"), alerting.TypeBaselineUpdate, alerting.PriorityInfo, false},
		{"type override", Preferences{Enabled: true, Types: map[alerting.AlertType]bool{alerting.TypeSpike: off}}, alerting.TypeSpike, alerting.PriorityHigh, false},
		{"opt in", Preferences{Enabled: true, Types: map[alerting.AlertType]bool{alerting.TypeBaselineUpdate: true}}, alerting.TypeBaselineUpdate, alerting.PriorityInfo, true},
		{"disabled", Preferences{Enabled: false}, alerting.TypeDeviation, alerting.PriorityHigh, false},
		{"critical while disabled", Preferences{Enabled: false}, alerting.TypeRisk, alerting.PriorityCritical, true},
		{"critical while type off", Preferences{Enabled: true, Types: map[alerting.AlertType]bool{alerting.TypeRisk: false}}, alerting.TypeRisk, alerting.PriorityCritical, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prefs.Allows(tt.typ, tt.priority, defaults); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchMuted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pusher := &recordingPusher{}
	prefs := NewMemoryPreferenceStore()
	d := NewDispatcher(store, pusher, nil, 0).WithPreferences(prefs, nil)

	p := DefaultPreferences("u1")
	p.Types[alerting.TypeSpike] = false
	if err := prefs.SavePreferences(ctx, &p); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Dispatch(ctx, sample("u1")); !errors.Is(err, ErrMuted) {
		t.Fatalf("Dispatch() error = %v, want ErrMuted", err)
	}
	if _, total, _ := store.List(ctx, "u1", Filter{}); total != 0 || pusher.count(EventNew) != 0 {
		t.Errorf("muted notification stored %d, pushed %d", total, pusher.count(EventNew))
	}

	// Users without a stored row get the defaults.
	if _, err := d.Dispatch(ctx, sample("u2")); err != nil {
		t.Errorf("Dispatch() for default user error = %v", err)
	}
}

func TestDispatchDeliversWhenPreferencesFail(t *testing.T) {
	d := NewDispatcher(NewMemoryStore(), nil, nil, 0).
		WithPreferences(brokenPreferences{NewMemoryPreferenceStore()}, nil)
	if _, err := d.Dispatch(context.Background(), sample("u1")); err != nil {
		t.Errorf("Dispatch() error = %v, want delivery", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	ctx := context.Background()
	clock := newTicker()
	d := NewDispatcher(NewMemoryStore(), nil, nil, 0).
		WithClock(clock.now).
		WithPreferences(NewMemoryPreferenceStore(), nil)

	on := true
	p, err := d.UpdatePreferences(ctx, "u1", PreferencesUpdate{
		DailyDigest: &on,
		Types:       map[alerting.AlertType]bool{alerting.TypePositiveMilestone: false},
	})
	if err != nil {
		t.Fatalf("UpdatePreferences() error = %v", err)
	}
	if !p.Enabled || !p.DailyDigest || !p.ReEngagement || p.UpdatedAt.IsZero() {
		t.Errorf("first update = %+v", p)
	}

	off := false
	p, err = d.UpdatePreferences(ctx, "u1", PreferencesUpdate{
		ReEngagement: &off,
		Types:        map[alerting.AlertType]bool{alerting.TypeBaselineUpdate: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.DailyDigest || p.ReEngagement {
		t.Errorf("second update lost fields: %+v", p)
	}
	if p.Types[alerting.TypePositiveMilestone] || !p.Types[alerting.TypeBaselineUpdate] {
		t.Errorf("types not merged: %v", p.Types)
	}

	stored, err := d.Preferences(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.DailyDigest || len(stored.Types) != 2 {
		t.Errorf("stored = %+v", stored)
	}
	if !d.OptedIn(ctx, "u1", alerting.TypeBaselineUpdate) || d.OptedIn(ctx, "u2", alerting.TypeBaselineUpdate) {
		t.Error("OptedIn should report only explicit opt-ins")
	}

	if _, err := d.UpdatePreferences(ctx, "u1", PreferencesUpdate{Types: map[alerting.AlertType]bool{"GOSSIP": true}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown type error = %v, want ErrInvalidInput", err)
	}
}

func TestUpdatePreferencesWithoutStore(t *testing.T) {
	d := NewDispatcher(NewMemoryStore(), nil, nil, 0)
	if _, err := d.UpdatePreferences(context.Background(), "u1", PreferencesUpdate{}); !errors.Is(err, ErrPreferencesUnavailable) {
		t.Errorf("error = %v, want ErrPreferencesUnavailable", err)
	}
	p, err := d.Preferences(context.Background(), "u1")
	if err != nil || !p.Enabled {
		t.Errorf("Preferences() = %+v, %v", p, err)
	}
}

func TestMemoryPreferenceStoreDigestSubscribers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPreferenceStore()
	for _, p := range []Preferences{
		{UserID: "zoe", Enabled: true, DailyDigest: true},
		{UserID: "amy", Enabled: true, DailyDigest: true},
		{UserID: "bob", Enabled: false, DailyDigest: true},
		{UserID: "cat", Enabled: true},
	} {
		if err := s.SavePreferences(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	ids, _ := s.DigestSubscribers(ctx)
	if len(ids) != 2 || ids[0] != "amy" || ids[1] != "zoe" {
		t.Errorf("DigestSubscribers() = %v", ids)
	}

	// Returned values are copies.
	p, _ := s.GetPreferences(ctx, "amy")
	p.Types[alerting.TypeSpike] = false
	again, _ := s.GetPreferences(ctx, "amy")
	if len(again.Types) != 0 {
		t.Error("mutating a returned value changed the store")
	}
}
