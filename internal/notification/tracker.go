// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
)

// DefaultCriticalLimit is how many notifications Critical returns.
const DefaultCriticalLimit = 5

// ReadEvent is the payload of notification:read.
type ReadEvent struct {
	ID          string `json:"id"`
	UnreadCount int    `json:"unreadCount"`
}

// ReadBatchEvent is the payload of notification:read-batch.
type ReadBatchEvent struct {
	IDs         []string `json:"ids"`
	Changed     int      `json:"changed"`
	UnreadCount int      `json:"unreadCount"`
}

// Tracker serves the recipient-facing read state operations. Unread counts
// are always read back from storage after a mutation so they can never drift
// from the stored records.
type Tracker struct {
	store         Store
	pusher        Pusher
	criticalLimit int
	now           func() time.Time
}

// NewTracker creates a tracker. A nil pusher drops read events.
func NewTracker(store Store, pusher Pusher, criticalLimit int) *Tracker {
	if pusher == nil {
		pusher = NopPusher{}
	}
	if criticalLimit <= 0 {
		criticalLimit = DefaultCriticalLimit
	}
	return &Tracker{store: store, pusher: pusher, criticalLimit: criticalLimit, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Get returns one of the user's notifications.
func (t *Tracker) Get(ctx context.Context, userID, id string) (*Notification, error) {
	return t.store.Get(ctx, userID, id)
}

// MarkRead moves a notification from unread to read. Marking an already read
// notification changes nothing and is not an error. The returned event
// carries the unread count after the operation.
func (t *Tracker) MarkRead(ctx context.Context, userID, id string) (*ReadEvent, error) {
	if _, err := t.store.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	changed, err := t.store.MarkRead(ctx, userID, []string{id}, t.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	unread, err := t.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	ev := &ReadEvent{ID: id, UnreadCount: unread}
	if changed > 0 {
		t.pusher.SendToUser(userID, EventRead, ev)
	}
	return ev, nil
}

// MarkManyRead marks every listed notification read and returns the number
// that changed. Unknown and foreign ids are ignored.
func (t *Tracker) MarkManyRead(ctx context.Context, userID string, ids []string) (*ReadBatchEvent, error) {
	changed := 0
	if len(ids) > 0 {
		var err error
		changed, err = t.store.MarkRead(ctx, userID, dedupe(ids), t.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("mark %d notifications read: %w", len(ids), err)
		}
	}
	unread, err := t.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	ev := &ReadBatchEvent{IDs: ids, Changed: changed, UnreadCount: unread}
	if changed > 0 {
		t.pusher.SendToUser(userID, EventReadBatch, ev)
	}
	return ev, nil
}

// Dismiss hides a notification from the default views. Read state is not
// touched. Dismissing twice is not an error.
func (t *Tracker) Dismiss(ctx context.Context, userID, id string) (*Notification, error) {
	if _, err := t.store.Dismiss(ctx, userID, id, t.now().UTC()); err != nil {
		return nil, err
	}
	return t.store.Get(ctx, userID, id)
}

// Delete removes a notification permanently.
func (t *Tracker) Delete(ctx context.Context, userID, id string) error {
	return t.store.Delete(ctx, userID, id)
}

// ClearAll deletes every notification of the user and returns the count.
func (t *Tracker) ClearAll(ctx context.Context, userID string) (int, error) {
	n, err := t.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear notifications for %s: %w", userID, err)
	}
	return n, nil
}

// Fetch returns one page of the user's notifications, newest first.
func (t *Tracker) Fetch(ctx context.Context, userID string, f Filter) (*Page, error) {
	items, total, err := t.store.List(ctx, userID, f.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	if items == nil {
		items = []Notification{}
	}
	return &Page{Items: items, Total: total}, nil
}

// UnreadCount counts the user's unread notifications in storage.
func (t *Tracker) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := t.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications for %s: %w", userID, err)
	}
	return n, nil
}

// Critical returns the newest unread, undismissed critical or high
// notifications.
func (t *Tracker) Critical(ctx context.Context, userID string) ([]Notification, error) {
	unread := false
	page, err := t.Fetch(ctx, userID, Filter{
		Read:       &unread,
		Severities: []alerting.Priority{alerting.PriorityCritical, alerting.PriorityHigh},
		Limit:      t.criticalLimit,
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// PurgeExpired deletes notifications whose ExpiresAt is not after now.
func (t *Tracker) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := t.store.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired notifications: %w", err)
	}
	if n > 0 {
		metrics.NotificationsExpiredTotal.Add(float64(n))
		logging.Ctx(ctx).Info().Int("removed", n).Msg("Expired notifications purged")
	}
	return n, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
