// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `koanf:"enabled"`

	// Retention is how long events are kept before Purge removes them.
	Retention time.Duration `koanf:"retention"`

	// CleanupInterval is how often the retention job runs.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `koanf:"buffer_size"`

	// LogToStdout also writes every event to the application log.
	LogToStdout bool `koanf:"log_to_stdout"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Retention:       90 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// writeTimeout bounds a single store write from the async writer.
const writeTimeout = 5 * time.Second

// Logger buffers events and writes them to a Store in the background.
type Logger struct {
	config    Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewLogger creates a logger and starts its writer. Call Close to flush.
func NewLogger(store Store, config Config) *Logger {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}

	l.wg.Add(1)
	go l.asyncWriter()
	return l
}

// WithClock replaces the time source. Intended for tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.config.LogToStdout {
		if data, err := json.Marshal(event); err == nil {
			logging.Info().RawJSON("event", data).Msg("Audit event")
		}
	}
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log queues an event. ID and Timestamp are filled in when empty. Log never
// blocks: a full buffer drops the event.
func (l *Logger) Log(event *Event) {
	if l == nil || !l.config.Enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Audit event buffer full, dropping event")
	}
}

// Close stops the writer after draining queued events. It is safe to call
// more than once.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Purge deletes events older than the retention period.
func (l *Logger) Purge(ctx context.Context, now time.Time) (int64, error) {
	count, err := l.store.Delete(ctx, now.Add(-l.config.Retention))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
	}
	return count, nil
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter.Normalize())
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// LogBaselineUpdate records a BASELINE_UPDATE alert for userID's entry.
func (l *Logger) LogBaselineUpdate(ctx context.Context, userID, entryID string, a alerting.Alert) {
	l.Log(&Event{
		Type:          EventTypeBaselineUpdate,
		Severity:      SeverityInfo,
		Outcome:       OutcomeSuccess,
		Actor:         SystemActor(),
		Target:        &Target{ID: userID, Type: ActorUser},
		Action:        "evaluate",
		Description:   a.Message,
		Metadata:      mustJSON(a.Trigger),
		CorrelationID: entryID,
		RequestID:     logging.RequestIDFromContext(ctx),
	})
}

// BroadcastDetails describes a sent broadcast.
type BroadcastDetails struct {
	Role       string `json:"role"`
	Title      string `json:"title"`
	Severity   string `json:"severity"`
	Recipients int    `json:"recipients"`
}

// LogBroadcast records an admin broadcast.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogBroadcast(ctx context.Context, actor Actor, source Source, d BroadcastDetails) {
	l.Log(&Event{
		Type:        EventTypeBroadcast,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Target:      &Target{ID: d.Role, Type: "role"},
		Source:      source,
		Action:      "broadcast",
		Description: "Broadcast sent to role " + d.Role,
		Metadata:    mustJSON(d),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogPreferencesChanged records a user changing delivery preferences.
// changes holds the submitted fields.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogPreferencesChanged(ctx context.Context, actor Actor, source Source, changes any) {
	l.Log(&Event{
		Type:        EventTypePreferencesChanged,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Target:      &Target{ID: actor.ID, Type: ActorUser},
		Source:      source,
		Action:      "update_preferences",
		Description: "Notification preferences updated",
		Metadata:    mustJSON(changes),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// mustJSON converts a value to JSON, returning an empty object on error.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SourceFromRequest creates a Source from an HTTP request. RemoteAddr is
// expected to be rewritten by the RealIP middleware.
func SourceFromRequest(r *http.Request) Source {
	return Source{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// UserActor creates an Actor for an authenticated user.
func UserActor(id string, roles []string) Actor {
	return Actor{ID: id, Type: ActorUser, Roles: roles}
}

// SystemActor returns the Actor for work the service does on its own.
func SystemActor() Actor {
	return Actor{ID: "deviation_pipeline", Type: ActorSystem}
}
