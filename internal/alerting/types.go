// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package alerting turns a deviation result into typed, prioritized alerts,
// recommendations and templated supportive text, and gates delivery of
// repeated alerts with per-type cooldowns.
//
// Classification is pure and deterministic: given the same inputs it always
// produces the same alerts in the same order. Cooldown state is the only
// mutable part of the package and is owned by the caller.
package alerting

import (
	"fmt"
	"strings"
)

// AlertType identifies what an alert is about.
type AlertType string

const (
	TypeDeviation         AlertType = "DEVIATION_ALERT"
	TypeSpike             AlertType = "SPIKE_WARNING"
	TypePositiveMilestone AlertType = "POSITIVE_MILESTONE"
	TypeRisk              AlertType = "RISK_ALERT"
	TypePattern           AlertType = "PATTERN_WARNING"
	TypeBaselineUpdate    AlertType = "BASELINE_UPDATE"
	TypeInfo              AlertType = "INFO"
)

// AllTypes lists every alert type.
var AllTypes = []AlertType{
	TypeDeviation, TypeSpike, TypePositiveMilestone, TypeRisk,
	TypePattern, TypeBaselineUpdate, TypeInfo,
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority is an ordinal severity. Larger is more severe.
type Priority int

const (
	PriorityInfo Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (p Priority) String() string {
	if p < PriorityInfo || p > PriorityCritical {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority parses a lower-case priority name. "moderate" is accepted
// as an alias for medium.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "moderate" {
		return PriorityMedium, nil
	}
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return PriorityInfo, fmt.Errorf("unknown priority %q", s)
}

// Valid reports whether p is one of the named priorities.
func (p Priority) Valid() bool {
	return p >= PriorityInfo && p <= PriorityCritical
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityInfo || p > PriorityCritical {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TriggerData is the context that caused an alert. Kind always equals the
// alert type; every other field is optional and only set by the rules that
// have a value for it.
type TriggerData struct {
	Kind             AlertType `json:"kind"`
	EmotionType      string    `json:"emotionType,omitempty"`
	DeviationScore   *float64  `json:"deviationScore,omitempty"`
	BaselineValue    *float64  `json:"baselineValue,omitempty"`
	CurrentValue     *float64  `json:"currentValue,omitempty"`
	PercentageChange *float64  `json:"percentageChange,omitempty"`
	ConsecutiveCount *int      `json:"consecutiveCount,omitempty"`
	EntryCount       *int      `json:"entryCount,omitempty"`
	AlertReason      string    `json:"alertReason,omitempty"`
}

// Alert is one classifier finding. Alerts are not persisted; the dispatcher
// turns the delivered ones into notifications.
type Alert struct {
	Type        AlertType   `json:"type"`
	Priority    Priority    `json:"priority"`
	Title       string      `json:"title"`
	Message     string      `json:"message"`
	Description string      `json:"description,omitempty"`
	Trigger     TriggerData `json:"triggerData"`
}

// RecommendationType is the kind of coping activity suggested.
type RecommendationType string

const (
	RecJournaling RecommendationType = "journaling"
	RecMeditation RecommendationType = "meditation"
	RecExercise   RecommendationType = "exercise"
	RecSocial     RecommendationType = "social"
)

// Recommendation is a short suggestion shown next to the alerts.
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Message  string             `json:"message"`
	Priority Priority           `json:"priority"`
}

// Classification is the full classifier output for one entry.
type Classification struct {
	Alerts          []Alert          `json:"alerts"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
	SupportiveNote  string           `json:"supportiveNote"`
	// Audit holds records kept for logging only. They are not delivered
	// unless the classifier is configured to do so.
	Audit []Alert `json:"-"`
}

// HighestPriority returns the most severe alert priority, and false when
// there are no alerts.
func (c *Classification) HighestPriority() (Priority, bool) {
	if len(c.Alerts) == 0 {
		return PriorityInfo, false
	}
	highest := c.Alerts[0].Priority
	for _, a := range c.Alerts[1:] {
		if a.Priority > highest {
			highest = a.Priority
		}
	}
	return highest, true
}

// Has reports whether an alert of type t was emitted.
func (c *Classification) Has(t AlertType) bool {
	for _, a := range c.Alerts {
		if a.Type == t {
			return true
		}
	}
	return false
}

func f64(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
