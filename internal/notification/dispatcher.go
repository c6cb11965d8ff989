// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
)

// DefaultBroadcastRole is the role a broadcast targets when none is given.
const DefaultBroadcastRole = "user"

// Dispatcher creates notifications and pushes them to live sessions.
type Dispatcher struct {
	store     Store
	pusher    Pusher
	directory Directory
	retention time.Duration
	now       func() time.Time
	newID     func() string

	prefs    PreferenceStore
	defaults map[alerting.AlertType]bool
}

// NewDispatcher creates a dispatcher. A nil pusher drops pushes; a
// non-positive retention uses DefaultRetention.
func NewDispatcher(store Store, pusher Pusher, directory Directory, retention time.Duration) *Dispatcher {
	if pusher == nil {
		pusher = NopPusher{}
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Dispatcher{
		store:     store,
		pusher:    pusher,
		directory: directory,
		retention: retention,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock replaces the time source. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch persists n and then pushes it to the recipient's sessions. The
// CreatedAt and ExpiresAt fields are assigned here, and ID when n has none.
// If persisting fails nothing is pushed.
//
// Dispatching an ID that is already stored is a no-op: the stored record is
// returned and nothing is pushed again. A notification the recipient's
// preferences turn off returns ErrMuted.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) (*Notification, error) {
	if err := validate(n); err != nil {
		return nil, err
	}
	if n.ID != "" {
		stored, err := d.store.Get(ctx, n.UserID, n.ID)
		if err == nil {
			logging.Ctx(ctx).Debug().
				Str("notification_id", n.ID).
				Str("user_id", n.UserID).
				Msg("Notification already dispatched")
			return stored, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("look up notification %s: %w", n.ID, err)
		}
	}
	if !d.allowed(ctx, n) {
		metrics.RecordNotifications(string(n.Type), "muted", 1)
		return nil, ErrMuted
	}
	d.stamp(n)

	if err := d.store.Insert(ctx, []*Notification{n}); err != nil {
		return nil, fmt.Errorf("persist notification for %s: %w", n.UserID, err)
	}
	metrics.RecordNotifications(string(n.Type), "direct", 1)

	d.push(n)
	logging.Ctx(ctx).Debug().
		Str("notification_id", n.ID).
		Str("user_id", n.UserID).
		Str("type", string(n.Type)).
		Str("severity", n.Severity.String()).
		Msg("Notification dispatched")
	return n, nil
}

// BroadcastRequest is an admin message to every user holding Role.
type BroadcastRequest struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"required,max=2000"`
	Severity    alerting.Priority `json:"severity" validate:"priority"`
	Role        string            `json:"role,omitempty" validate:"omitempty,alphanum,max=32"`
}

// Broadcast creates one INFO notification per recipient of req.Role in a
// single batch, pushes each one and returns the recipient count. Recipients
// are resolved now; no role members is not an error. Every call creates a
// new batch.
func (d *Dispatcher) Broadcast(ctx context.Context, req BroadcastRequest) (int, error) {
	if strings.TrimSpace(req.Title) == "" {
		return 0, fmt.Errorf("%w: broadcast title is required", ErrInvalidInput)
	}
	role := req.Role
	if role == "" {
		role = DefaultBroadcastRole
	}
	if d.directory == nil {
		return 0, fmt.Errorf("%w: no recipient directory configured", ErrInvalidInput)
	}

	recipients, err := d.directory.UserIDsByRole(ctx, role)
	if err != nil {
		return 0, fmt.Errorf("resolve broadcast recipients for role %s: %w", role, err)
	}
	if len(recipients) == 0 {
		logging.Ctx(ctx).Info().Str("role", role).Msg("Broadcast has no recipients")
		return 0, nil
	}

	batch := make([]*Notification, 0, len(recipients))
	for _, userID := range recipients {
		n := &Notification{
			UserID:      userID,
			Type:        alerting.TypeInfo,
			Severity:    req.Severity,
			Title:       req.Title,
			Message:     req.Description,
			Description: req.Description,
			Action:      ActionNone,
		}
		d.stamp(n)
		batch = append(batch, n)
	}

	if err := d.store.Insert(ctx, batch); err != nil {
		return 0, fmt.Errorf("persist broadcast to %d recipients: %w", len(batch), err)
	}
	metrics.RecordNotifications(string(alerting.TypeInfo), "broadcast", len(batch))

	for _, n := range batch {
		d.push(n)
	}
	logging.Ctx(ctx).Info().
		Str("role", role).
		Int("recipients", len(batch)).
		Str("severity", req.Severity.String()).
		Msg("Broadcast sent")
	return len(batch), nil
}

// alertNamespace scopes the name-based ids of alert notifications.
var alertNamespace = uuid.MustParse("6f1d3c52-8e0a-4b8e-9d6a-2f7c51a0b9e4")

// FromAlert builds the notification for a delivered alert. With a journalID
// the ID is derived from the user, entry, alert type and emotion, so the same
// alert for the same entry always maps to the same record.
func FromAlert(userID, journalID string, a alerting.Alert) *Notification {
	trigger := a.Trigger
	return &Notification{
		ID:          AlertID(userID, journalID, a),
		UserID:      userID,
		Type:        a.Type,
		Severity:    a.Priority,
		Title:       a.Title,
		Message:     a.Message,
		Description: a.Description,
		Trigger:     &trigger,
		JournalID:   journalID,
		Action:      actionFor(a.Type),
	}
}

// AlertID returns the stable notification id for a on entry journalID, or ""
// when there is no entry to anchor it to.
func AlertID(userID, journalID string, a alerting.Alert) string {
	if journalID == "" {
		return ""
	}
	name := strings.Join([]string{userID, journalID, string(a.Type), a.Trigger.EmotionType}, "\x00")
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

func actionFor(t alerting.AlertType) Action {
	switch t {
	case alerting.TypeRisk:
		return ActionTakeAction
	case alerting.TypeSpike, alerting.TypePattern:
		return ActionCheckBaseline
	case alerting.TypeDeviation:
		return ActionViewJournal
	default:
		return ActionNone
	}
}

func (d *Dispatcher) stamp(n *Notification) {
	if n.ID == "" {
		n.ID = d.newID()
	}
	n.CreatedAt = d.now().UTC()
	n.ExpiresAt = n.CreatedAt.Add(d.retention)
	n.Read, n.ReadAt = false, nil
	n.Dismissed, n.DismissedAt = false, nil
	if n.Action == "" {
		n.Action = ActionNone
	}
}

func (d *Dispatcher) push(n *Notification) {
	d.pusher.SendToUser(n.UserID, EventNew, n)
}

func validate(n *Notification) error {
	switch {
	case n == nil:
		return fmt.Errorf("%w: nil notification", ErrInvalidInput)
	case strings.TrimSpace(n.UserID) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	case !n.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, n.Type)
	case strings.TrimSpace(n.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}
