// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func alertWith(t AlertType, p Priority, score float64) Alert {
	return Alert{Type: t, Priority: p, Trigger: TriggerData{Kind: t, DeviationScore: f64(score)}}
}

func TestCooldowns(t *testing.T) {
	clk := &clock{t: fixedNow}
	cd := NewCooldowns(nil, 0, 100).WithClock(clk.now)

	a := alertWith(TypeDeviation, PriorityHigh, 0.55)
	if ok, _ := cd.Allow("u1", a, false); !ok {
		t.Fatal("first alert must pass")
	}
	cd.Record("u1", a)

	if ok, reason := cd.Allow("u1", a, false); ok || reason != ReasonCooldown {
		t.Errorf("repeat = (%v, %q), want suppressed by cooldown", ok, reason)
	}
	if ok, _ := cd.Allow("u2", a, false); !ok {
		t.Error("cooldowns are per user")
	}
	if ok, _ := cd.Allow("u1", alertWith(TypePattern, PriorityMedium, 0.4), false); !ok {
		t.Error("cooldowns are per alert type")
	}

	clk.t = clk.t.Add(23 * time.Hour)
	if ok, _ := cd.Allow("u1", a, false); ok {
		t.Error("deviation cooldown lasts 24h")
	}
	clk.t = clk.t.Add(time.Hour)
	if ok, _ := cd.Allow("u1", a, false); !ok {
		t.Error("cooldown should have elapsed")
	}
}

func TestCooldownsEscalation(t *testing.T) {
	clk := &clock{t: fixedNow}
	cd := NewCooldowns(nil, 1.5, 100).WithClock(clk.now)

	cd.Record("u1", alertWith(TypePattern, PriorityMedium, 0.32))

	tests := []struct {
		name       string
		alert      Alert
		wantOK     bool
		wantReason string
	}{
		{"slightly worse stays quiet", alertWith(TypePattern, PriorityMedium, 0.4), false, ReasonCooldown},
		{"factor exceeded bypasses", alertWith(TypePattern, PriorityMedium, 0.5), true, ReasonEscalated},
		{"higher priority bypasses", alertWith(TypePattern, PriorityHigh, 0.33), true, ReasonEscalated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := cd.Allow("u1", tt.alert, false)
			if ok != tt.wantOK || reason != tt.wantReason {
				t.Errorf("Allow() = (%v, %q), want (%v, %q)", ok, reason, tt.wantOK, tt.wantReason)
			}
		})
	}
}

func TestCooldownsZeroPeriod(t *testing.T) {
	cd := NewCooldowns(nil, 0, 100)
	a := alertWith(TypePositiveMilestone, PriorityInfo, 0)
	cd.Record("u1", a)
	if ok, _ := cd.Allow("u1", a, false); !ok {
		t.Error("positive milestones have no cooldown")
	}
	if _, ok := cd.LastDelivered("u1", a); ok {
		t.Error("zero period alerts are not recorded")
	}
}

func TestCooldownsReset(t *testing.T) {
	cd := NewCooldowns(map[AlertType]time.Duration{TypeRisk: time.Hour}, 0, 10)
	a := alertWith(TypeRisk, PriorityCritical, 0.9)
	cd.Record("u1", a)
	if ok, _ := cd.Allow("u1", a, false); ok {
		t.Fatal("expected cooldown")
	}
	cd.Reset("u1", a)
	if ok, _ := cd.Allow("u1", a, false); !ok {
		t.Error("Reset should clear the cooldown")
	}
}

func TestCooldownsSpikeScoresOnCurrentValue(t *testing.T) {
	clk := &clock{t: fixedNow}
	cd := NewCooldowns(nil, 1.5, 100).WithClock(clk.now)

	spike := func(cur float64) Alert {
		return Alert{Type: TypeSpike, Priority: PriorityHigh, Trigger: TriggerData{
			Kind: TypeSpike, EmotionType: "fear", CurrentValue: f64(cur), DeviationScore: f64(0.1),
		}}
	}
	cd.Record("u1", spike(0.4))
	if ok, _ := cd.Allow("u1", spike(0.5), false); ok {
		t.Error("0.5 is below 1.5x 0.4")
	}
	if ok, _ := cd.Allow("u1", spike(0.7), false); !ok {
		t.Error("0.7 exceeds 1.5x 0.4")
	}
}

func TestCooldownsSpikesPerEmotion(t *testing.T) {
	cd := NewCooldowns(nil, 0, 100).WithClock((&clock{t: fixedNow}).now)
	spike := func(emotion string) Alert {
		return Alert{Type: TypeSpike, Priority: PriorityHigh, Trigger: TriggerData{
			Kind: TypeSpike, EmotionType: emotion, CurrentValue: f64(0.8),
		}}
	}

	fear, grief := spike("fear"), spike("grief")
	for _, a := range []Alert{fear, grief} {
		if ok, _ := cd.Allow("u1", a, false); !ok {
			t.Fatalf("first %s spike must pass", a.Trigger.EmotionType)
		}
	}
	cd.Record("u1", fear)
	cd.Record("u1", grief)

	if ok, reason := cd.Allow("u1", fear, false); ok || reason != ReasonCooldown {
		t.Errorf("repeat fear spike = (%v, %q), want cooldown", ok, reason)
	}
	if ok, _ := cd.Allow("u1", spike("anger"), false); !ok {
		t.Error("a spike in another emotion has its own cooldown")
	}
	if _, ok := cd.LastDelivered("u1", grief); !ok {
		t.Error("grief spike should be recorded")
	}
}

func TestCooldownsDeteriorationBypass(t *testing.T) {
	cd := NewCooldowns(nil, 0, 100).WithClock((&clock{t: fixedNow}).now)
	a := alertWith(TypeDeviation, PriorityHigh, 0.55)
	cd.Record("u1", a)

	if ok, reason := cd.Allow("u1", a, true); !ok || reason != ReasonDeteriorated {
		t.Errorf("Allow(deteriorating) = (%v, %q), want (true, %q)", ok, reason, ReasonDeteriorated)
	}
	if ok, _ := cd.Allow("u1", a, false); ok {
		t.Error("without deterioration the cooldown holds")
	}
}
