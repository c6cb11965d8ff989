// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import (
	"time"

	"github.com/tomtom215/moodlog/internal/cache"
)

// DefaultCooldowns are the per-type quiet periods after a delivered alert.
// Types without an entry have no cooldown.
func DefaultCooldowns() map[AlertType]time.Duration {
	return map[AlertType]time.Duration{
		TypeRisk:              6 * time.Hour,
		TypeSpike:             12 * time.Hour,
		TypePattern:           72 * time.Hour,
		TypeDeviation:         24 * time.Hour,
		TypePositiveMilestone: 0,
	}
}

// DefaultEscalationFactor is how much worse an alert must be than the last
// delivered one of its type to skip the cooldown.
const DefaultEscalationFactor = 1.5

// Suppression reasons reported by Cooldowns.Allow.
const (
	ReasonNone         = ""
	ReasonCooldown     = "cooldown"
	ReasonEscalated    = "escalated"
	ReasonDeteriorated = "deteriorated"
)

type delivery struct {
	at       time.Time
	score    float64
	priority Priority
}

// Cooldowns remembers the last delivered alert per (user, type) and decides
// whether a new one may go out. Spike warnings are tracked per emotion, so a
// spike in fear does not silence a spike in grief. State is in-process and bounded; entries
// expire with their cooldown period.
type Cooldowns struct {
	periods    map[AlertType]time.Duration
	escalation float64
	last       *cache.LRU[delivery]
	now        func() time.Time
}

// NewCooldowns creates a gate. A nil periods map uses DefaultCooldowns and a
// non-positive factor uses DefaultEscalationFactor. capacity bounds the
// number of (user, type) pairs remembered.
func NewCooldowns(periods map[AlertType]time.Duration, escalationFactor float64, capacity int) *Cooldowns {
	if periods == nil {
		periods = DefaultCooldowns()
	}
	if escalationFactor <= 0 {
		escalationFactor = DefaultEscalationFactor
	}
	return &Cooldowns{
		periods:    periods,
		escalation: escalationFactor,
		last:       cache.NewLRU[delivery](capacity, 0),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cooldowns) WithClock(now func() time.Time) *Cooldowns {
	c.now = now
	c.last.WithClock(now)
	return c
}

// Allow reports whether a may be delivered to userID now. When a cooldown is
// active the alert still passes if it is more severe than the last delivery
// or its score is at least the escalation factor times the last score; the
// returned reason is then ReasonEscalated. deteriorating lets every alert
// through an active cooldown with ReasonDeteriorated.
//
// Allow does not change state: decide on every alert of a run first, then
// Record the ones delivered.
func (c *Cooldowns) Allow(userID string, a Alert, deteriorating bool) (bool, string) {
	if c.periods[a.Type] <= 0 {
		return true, ReasonNone
	}
	prev, ok := c.last.Get(cooldownKey(userID, a))
	if !ok {
		return true, ReasonNone
	}

	score := severityScore(a)
	if a.Priority > prev.priority || (prev.score > 0 && score >= prev.score*c.escalation) {
		return true, ReasonEscalated
	}
	if deteriorating {
		return true, ReasonDeteriorated
	}
	return false, ReasonCooldown
}

// Record marks a as delivered to userID, starting its cooldown.
func (c *Cooldowns) Record(userID string, a Alert) {
	period := c.periods[a.Type]
	if period <= 0 {
		return
	}
	c.last.AddTTL(cooldownKey(userID, a), delivery{
		at:       c.now(),
		score:    severityScore(a),
		priority: a.Priority,
	}, period)
}

// Reset forgets the cooldown a falls under for userID.
func (c *Cooldowns) Reset(userID string, a Alert) {
	c.last.Remove(cooldownKey(userID, a))
}

// LastDelivered returns when an alert sharing a's cooldown was last recorded
// for userID.
func (c *Cooldowns) LastDelivered(userID string, a Alert) (time.Time, bool) {
	d, ok := c.last.Get(cooldownKey(userID, a))
	return d.at, ok
}

// severityScore is the number escalation is measured on: the current value
// for spikes, the deviation score otherwise.
func severityScore(a Alert) float64 {
	if a.Type == TypeSpike && a.Trigger.CurrentValue != nil {
		return *a.Trigger.CurrentValue
	}
	if a.Trigger.DeviationScore != nil {
		return *a.Trigger.DeviationScore
	}
	return 0
}

func cooldownKey(userID string, a Alert) string {
	key := userID + "\x00" + string(a.Type)
	if a.Type == TypeSpike {
		key += "\x00" + a.Trigger.EmotionType
	}
	return key
}
