// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned by Store.Get for an unknown id.
var ErrNotFound = errors.New("audit event not found")

// EventType categorizes audit events.
type EventType string

const (
	// EventTypeBaselineUpdate is a BASELINE_UPDATE record from the alert
	// rules: the entry matched the baseline and nothing was delivered.
	EventTypeBaselineUpdate EventType = "baseline.update"

	// EventTypeBroadcast is an admin announcement sent to a role.
	EventTypeBroadcast EventType = "notification.broadcast"

	// EventTypePreferencesChanged is a user changing delivery preferences.
	EventTypePreferencesChanged EventType = "preferences.changed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeBaselineUpdate, EventTypeBroadcast, EventTypePreferencesChanged:
		return true
	}
	return false
}

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Actor types.
const (
	ActorUser   = "user"
	ActorSystem = "system"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`

	// Actor performed the action.
	Actor Actor `json:"actor"`

	// Target is the user or resource acted on.
	Target *Target `json:"target,omitempty"`

	// Source is empty for events raised by background work.
	Source Source `json:"source"`

	Action      string `json:"action"`
	Description string `json:"description"`

	// Metadata contains event-specific details.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID links related events, e.g. the journal entry id.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`
}

// Actor represents who performed an action.
type Actor struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Roles []string `json:"roles,omitempty"`
}

// Target represents the object of an action.
type Target struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Source represents where a request originated.
type Source struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error

	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Event, error)

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than olderThan and returns how many.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// MaxQueryLimit caps QueryFilter.Limit.
const MaxQueryLimit = 500

// QueryFilter selects audit events. Zero fields match everything.
type QueryFilter struct {
	Types         []EventType `json:"types,omitempty"`
	ActorID       string      `json:"actor_id,omitempty"`
	TargetID      string      `json:"target_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// DefaultQueryFilter returns the newest 100 events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

// Normalize clamps Limit into [1, MaxQueryLimit] and Offset to >= 0.
func (f QueryFilter) Normalize() QueryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryFilter().Limit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e satisfies every criterion of f. Limit and Offset
// are ignored.
func (f *QueryFilter) Matches(e *Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.TargetID != "" && (e.Target == nil || e.Target.ID != f.TargetID) {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}
