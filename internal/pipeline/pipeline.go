// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package pipeline runs one journal entry through the deviation flow:
//
//	classify -> sanitize -> baseline update -> evaluate -> store report
//	-> alert rules -> cooldowns -> preferences -> dispatch
//
// Storage failures abort the run. Push failures never do.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/baseline"
	"github.com/tomtom215/moodlog/internal/classifier"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
	"github.com/tomtom215/moodlog/internal/notification"
)

// ErrInvalidEntry is returned for an entry without a user or content.
var ErrInvalidEntry = errors.New("invalid journal entry")

// Entry is one journal entry to analyze. Emotions, when present, are used
// as-is and Text is not sent to the classifier.
type Entry struct {
	UserID   string             `json:"userId" validate:"required,max=128"`
	EntryID  string             `json:"entryId,omitempty" validate:"omitempty,max=128"`
	Text     string             `json:"text,omitempty" validate:"omitempty,max=20000"`
	Emotions map[string]float64 `json:"emotions,omitempty"`
}

// ReasonPreference marks an alert the recipient's preferences turned off.
const ReasonPreference = "preference"

// Suppressed is an alert withheld by the cooldown gate or the recipient's
// preferences.
type Suppressed struct {
	Alert  alerting.Alert `json:"alert"`
	Reason string         `json:"reason"`
}

// Outcome is the result of one run.
type Outcome struct {
	Report        *Report                      `json:"report,omitempty"`
	Notifications []*notification.Notification `json:"notifications"`
	Suppressed    []Suppressed                 `json:"suppressed,omitempty"`
	// Degraded is set when the classifier was unavailable. Nothing else
	// ran and the entry should still be accepted by the caller.
	Degraded bool `json:"degraded"`
}

// Deps wires a Pipeline. Classifier, Cooldowns and Audit are optional.
type Deps struct {
	Classifier classifier.Classifier
	Aggregator *baseline.Aggregator
	Engine     *deviation.Engine
	Rules      *alerting.Classifier
	Cooldowns  *alerting.Cooldowns
	Dispatcher *notification.Dispatcher
	Reports    ReportStore
	// Audit receives the BASELINE_UPDATE records the rules keep out of
	// the user's alerts.
	Audit *audit.Logger
}

// Pipeline is safe for concurrent use. Runs for the same user are
// serialized from the baseline update through dispatch; runs for different
// users are independent.
type Pipeline struct {
	deps  Deps
	locks *baseline.KeyedMutex
	now   func() time.Time
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, locks: baseline.NewKeyedMutex(), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Process analyzes e and dispatches one notification per delivered alert.
func (p *Pipeline) Process(ctx context.Context, e Entry) (out *Outcome, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil && outcome == "ok" {
			outcome = "storage_error"
		}
		metrics.RecordPipeline(outcome, time.Since(start))
	}()

	if strings.TrimSpace(e.UserID) == "" {
		outcome = "invalid"
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidEntry)
	}

	raw, err := p.scores(ctx, e)
	if err != nil {
		if errors.Is(err, classifier.ErrUnavailable) {
			outcome = "classifier_error"
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", e.UserID).Msg("Classifier unavailable, skipping deviation analysis")
			return &Outcome{Degraded: true, Notifications: []*notification.Notification{}}, nil
		}
		outcome = "invalid"
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	v := emotion.Sanitize(raw)
	if v.IsEmpty() {
		outcome = "empty_vector"
	}

	unlock := p.locks.Lock(e.UserID)
	defer unlock()

	// Update returns the unchanged baseline for an empty vector.
	b, err := p.deps.Aggregator.Update(ctx, e.UserID, e.EntryID, v)
	if err != nil {
		return nil, err
	}

	result := p.deps.Engine.Evaluate(b.Vector, v)
	metrics.RecordDeviation(string(result.Status))

	history, err := p.recentHistory(ctx, e.UserID)
	if err != nil {
		return nil, err
	}

	cls := p.deps.Rules.Classify(alerting.Input{
		Result:         result,
		Vector:         v,
		Baseline:       b.Vector,
		SampleCount:    b.SampleCount,
		RecentValences: p.valences(history),
	})
	for _, a := range cls.Audit {
		metrics.RecordAlertSuppressed(string(a.Type), "audit")
		p.deps.Audit.LogBaselineUpdate(ctx, e.UserID, e.EntryID, a)
	}

	report := &Report{
		UserID:          e.UserID,
		EntryID:         e.EntryID,
		Deviation:       result,
		Emotions:        v,
		Baseline:        b.Vector,
		SampleCount:     b.SampleCount,
		Alerts:          cls.Alerts,
		Recommendations: cls.Recommendations,
		Summary:         cls.Summary,
		SupportiveNote:  cls.SupportiveNote,
		CreatedAt:       p.now().UTC(),
	}
	if err := p.deps.Reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save deviation report for %s: %w", e.UserID, err)
	}

	res := &Outcome{Report: report, Notifications: []*notification.Notification{}}
	deliver := p.gate(e.UserID, cls.Alerts, p.deteriorating(history), res)
	for _, a := range deliver {
		n, err := p.deps.Dispatcher.Dispatch(ctx, notification.FromAlert(e.UserID, e.EntryID, a))
		if errors.Is(err, notification.ErrMuted) {
			metrics.RecordAlertSuppressed(string(a.Type), ReasonPreference)
			res.Suppressed = append(res.Suppressed, Suppressed{Alert: a, Reason: ReasonPreference})
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.deps.Cooldowns != nil {
			p.deps.Cooldowns.Record(e.UserID, a)
		}
		metrics.RecordAlert(string(a.Type), a.Priority.String())
		res.Notifications = append(res.Notifications, n)
	}

	// Users who opted into baseline updates get the audit records too.
	for _, a := range cls.Audit {
		if !p.deps.Dispatcher.OptedIn(ctx, e.UserID, a.Type) {
			continue
		}
		n, err := p.deps.Dispatcher.Dispatch(ctx, notification.FromAlert(e.UserID, e.EntryID, a))
		if errors.Is(err, notification.ErrMuted) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Notifications = append(res.Notifications, n)
	}

	logging.Ctx(ctx).Info().
		Str("user_id", e.UserID).
		Str("entry_id", e.EntryID).
		Str("status", string(result.Status)).
		Float64("deviation_score", result.DeviationScore).
		Int("sample_count", b.SampleCount).
		Int("alerts", len(cls.Alerts)).
		Int("delivered", len(res.Notifications)).
		Int("suppressed", len(res.Suppressed)).
		Msg("Journal entry analyzed")
	return res, nil
}

// Latest returns the user's most recent report, or ErrNoReport.
func (p *Pipeline) Latest(ctx context.Context, userID string) (*Report, error) {
	return p.deps.Reports.GetReport(ctx, userID)
}

func (p *Pipeline) scores(ctx context.Context, e Entry) (map[string]float64, error) {
	if e.Emotions != nil {
		return e.Emotions, nil
	}
	if strings.TrimSpace(e.Text) == "" {
		return nil, errors.New("text or emotions are required")
	}
	if p.deps.Classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", classifier.ErrUnavailable)
	}
	return p.deps.Classifier.Classify(ctx, e.Text)
}

// recentHistory returns the newest history entries, enough for both the
// persistent-negativity window and the deterioration check.
func (p *Pipeline) recentHistory(ctx context.Context, userID string) ([]baseline.HistoryEntry, error) {
	limit := max(p.deps.Rules.Config().PersistentWindow, 2)
	history, err := p.deps.Aggregator.RecentHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load baseline history for %s: %w", userID, err)
	}
	return history, nil
}

func (p *Pipeline) valences(history []baseline.HistoryEntry) []emotion.Valence {
	window := p.deps.Rules.Config().PersistentWindow
	if window <= 0 {
		return nil
	}
	history = history[:min(window, len(history))]
	out := make([]emotion.Valence, len(history))
	for i, h := range history {
		out[i] = h.Valence
	}
	return out
}

func (p *Pipeline) deteriorating(history []baseline.HistoryEntry) bool {
	recent := make([]emotion.Vector, len(history))
	for i, h := range history {
		recent[i] = h.Vector
	}
	return alerting.Deteriorating(recent, p.deps.Rules.Clusters())
}

// gate decides on every alert before any cooldown is recorded, so alerts of
// one entry never suppress each other. Withheld alerts are added to res.
func (p *Pipeline) gate(userID string, alerts []alerting.Alert, deteriorating bool, res *Outcome) []alerting.Alert {
	if p.deps.Cooldowns == nil {
		return alerts
	}
	deliver := make([]alerting.Alert, 0, len(alerts))
	for _, a := range alerts {
		ok, reason := p.deps.Cooldowns.Allow(userID, a, deteriorating)
		if !ok {
			metrics.RecordAlertSuppressed(string(a.Type), reason)
			res.Suppressed = append(res.Suppressed, Suppressed{Alert: a, Reason: reason})
			continue
		}
		deliver = append(deliver, a)
	}
	return deliver
}
