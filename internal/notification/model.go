// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package notification persists user notifications, pushes them to live
// sessions and tracks per-recipient read and dismissed state.
//
// Persistence always happens before push. A push that cannot be delivered is
// not an error: the record stays in storage and is returned by the next fetch.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
)

// Sentinel errors.
var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidInput = errors.New("invalid notification")
)

// Push event names.
const (
	EventNew       = "notification:new"
	EventRead      = "notification:read"
	EventReadBatch = "notification:read-batch"
)

// DefaultRetention is how long a notification lives before the sweeper
// removes it.
const DefaultRetention = 30 * 24 * time.Hour

// Action is the follow-up the client offers with a notification.
type Action string

const (
	ActionNone          Action = "NONE"
	ActionViewJournal   Action = "VIEW_JOURNAL"
	ActionCheckBaseline Action = "CHECK_BASELINE"
	ActionTakeAction    Action = "TAKE_ACTION"
)

// Notification is one persisted message for one recipient.
type Notification struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId"`
	Type        alerting.AlertType    `json:"type"`
	Severity    alerting.Priority     `json:"severity"`
	Title       string                `json:"title"`
	Message     string                `json:"message"`
	Description string                `json:"description,omitempty"`
	Trigger     *alerting.TriggerData `json:"triggerData,omitempty"`
	JournalID   string                `json:"journalId,omitempty"`
	Action      Action                `json:"action"`
	Read        bool                  `json:"read"`
	ReadAt      *time.Time            `json:"readAt,omitempty"`
	Dismissed   bool                  `json:"dismissed"`
	DismissedAt *time.Time            `json:"dismissedAt,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	ExpiresAt   time.Time             `json:"expiresAt"`
}

// DedupKey identifies the notification for at-most-once push delivery.
func (n *Notification) DedupKey() string {
	return n.ID
}

// Filter narrows a Fetch. The zero value lists the user's active
// notifications, newest first, with the default page size.
type Filter struct {
	Read             *bool
	Type             alerting.AlertType
	Severities       []alerting.Priority
	IncludeDismissed bool
	Limit            int
	Offset           int
}

// DefaultPageSize and MaxPageSize bound Filter.Limit.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the paging fields.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Page is one page of a Fetch plus the total number of matches.
type Page struct {
	Items []Notification `json:"notifications"`
	Total int            `json:"total"`
}

// Store persists notifications. Every method that takes a userID only sees
// that user's records: an id belonging to someone else is ErrNotFound.
type Store interface {
	// Insert writes all notifications in one batch. A notification whose ID
	// is already stored is skipped and the stored record is kept.
	Insert(ctx context.Context, ns []*Notification) error
	Get(ctx context.Context, userID, id string) (*Notification, error)
	// List returns the page selected by f sorted by CreatedAt desc then ID
	// desc, and the total number of matches.
	List(ctx context.Context, userID string, f Filter) ([]Notification, int, error)
	// MarkRead sets read and readAt on unread matches and returns how many
	// changed. Unknown ids are skipped.
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error)
	// Dismiss sets dismissed on an active notification. It returns
	// ErrNotFound for an unknown id and false when already dismissed.
	Dismiss(ctx context.Context, userID, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Pusher delivers events to live sessions. Implementations must not block
// and must not report delivery failures.
type Pusher interface {
	SendToUser(userID, event string, payload any)
	SendToRole(role, event string, payload any)
}

// Directory resolves the recipients of a role broadcast.
type Directory interface {
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
}

// RoleDirectory is a Directory that learns memberships from authenticated
// requests.
type RoleDirectory interface {
	Directory
	Touch(ctx context.Context, userID, role string) error
}

// NopPusher drops every event.
type NopPusher struct{}

func (NopPusher) SendToUser(string, string, any) {}
func (NopPusher) SendToRole(string, string, any) {}
