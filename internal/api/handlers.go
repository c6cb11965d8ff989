// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/auth"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/pipeline"
	ws "github.com/tomtom215/moodlog/internal/websocket"
)

// NotificationService is the recipient-facing notification API.
// *notification.Tracker implements it.
type NotificationService interface {
	Get(ctx context.Context, userID, id string) (*notification.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (*notification.ReadEvent, error)
	MarkManyRead(ctx context.Context, userID string, ids []string) (*notification.ReadBatchEvent, error)
	Dismiss(ctx context.Context, userID, id string) (*notification.Notification, error)
	Delete(ctx context.Context, userID, id string) error
	ClearAll(ctx context.Context, userID string) (int, error)
	Fetch(ctx context.Context, userID string, f notification.Filter) (*notification.Page, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Critical(ctx context.Context, userID string) ([]notification.Notification, error)
}

// Broadcaster sends admin announcements. *notification.Dispatcher implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, req notification.BroadcastRequest) (int, error)
}

// JournalAnalyzer runs the deviation pipeline. *pipeline.Pipeline implements it.
type JournalAnalyzer interface {
	Process(ctx context.Context, e pipeline.Entry) (*pipeline.Outcome, error)
	Latest(ctx context.Context, userID string) (*pipeline.Report, error)
}

// PreferenceService reads and changes delivery preferences.
// *notification.Dispatcher implements it.
type PreferenceService interface {
	Preferences(ctx context.Context, userID string) (*notification.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, u notification.PreferencesUpdate) (*notification.Preferences, error)
}

// Pinger reports storage health. *database.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the handlers. Hub, Directory, Preferences
// and Audit are optional.
type Deps struct {
	Notifications NotificationService
	Broadcaster   Broadcaster
	Journals      JournalAnalyzer
	Preferences   PreferenceService
	Database      Pinger
	Hub           *ws.Hub
	Directory     notification.RoleDirectory
	Audit         *audit.Logger
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_notifications.go: notification feed and read state
//   - handlers_journals.go: analysis and latest deviation result
//   - handlers_preferences.go: delivery preferences
//   - handlers_audit.go: admin audit trail
//   - handlers_websocket.go: push channel upgrade
//   - handlers_health.go: liveness and readiness
type Handler struct {
	deps      Deps
	mw        *ChiMiddleware
	startTime time.Time
}

// NewHandler creates a handler. mw supplies the WebSocket origin policy.
func NewHandler(deps Deps, mw *ChiMiddleware) *Handler {
	return &Handler{deps: deps, mw: mw, startTime: time.Now()}
}

// subject returns the authenticated subject, writing 401 when absent.
func subject(rw *ResponseWriter, r *http.Request) (*auth.Subject, bool) {
	s, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		rw.Error(http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return nil, false
	}
	return s, true
}

// touch records the caller's role for broadcast targeting. Failures only
// degrade broadcast reach, so they are logged and ignored.
func (h *Handler) touch(ctx context.Context, s *auth.Subject) {
	if h.deps.Directory == nil {
		return
	}
	if err := h.deps.Directory.Touch(ctx, s.UserID, s.Role); err != nil {
		logFrom(ctx).Warn().Err(err).Msg("Failed to record user role")
	}
}
