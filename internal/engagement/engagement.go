// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package engagement sends the scheduled notifications that are not tied to
// one journal entry: the opt-in daily digest and the re-engagement nudge for
// users who stopped writing.
//
// Both jobs are safe to run repeatedly. Every notification has a name-based
// id (user and UTC day for the digest, user and last activity for the nudge)
// and is marked in the delivery ledger before dispatch, so each one is sent
// at most once.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/baseline"
	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
)

// Insight reasons carried in TriggerData.AlertReason.
const (
	ReasonDailyDigest  = "daily_digest"
	ReasonReEngagement = "re_engagement"
)

// Defaults.
const (
	DefaultDigestHour          = 20
	DefaultInactivityThreshold = 72 * time.Hour
	DefaultBatchSize           = 500

	// themeWindow is how many recent entries the digest themes cover.
	themeWindow = 7
	// changeThreshold is the positive-group shift the digest calls out.
	changeThreshold = 0.1
)

// markSession namespaces engagement records in the delivery ledger.
const markSession = "\x00engagement"

var idNamespace = uuid.MustParse("0b7a2f1e-5c3d-4e8a-9f61-3d2c8b4a7e10")

// Activity is the baseline data the jobs read.
type Activity interface {
	GetBaseline(ctx context.Context, userID string) (*baseline.Baseline, error)
	RecentHistory(ctx context.Context, userID string, limit int) ([]baseline.HistoryEntry, error)
	// Inactive returns baselines last updated before cutoff, least recently
	// active first.
	Inactive(ctx context.Context, cutoff time.Time, limit int) ([]baseline.Baseline, error)
}

// Sender creates notifications subject to the recipient's preferences.
type Sender interface {
	Dispatch(ctx context.Context, n *notification.Notification) (*notification.Notification, error)
	Preferences(ctx context.Context, userID string) (*notification.Preferences, error)
}

// Subscribers lists the users who opted into the daily digest.
type Subscribers interface {
	DigestSubscribers(ctx context.Context) ([]string, error)
}

// Marks records what was already sent. The delivery ledger implements it.
type Marks interface {
	CheckAndRecord(sessionKey, id string) (first bool, err error)
}

// Config tunes the scheduler.
type Config struct {
	// DigestHour is the UTC hour from which the day's digest is sent.
	DigestHour int
	// InactivityThreshold is how long without an entry before a nudge.
	InactivityThreshold time.Duration
	// BatchSize caps the users handled per run.
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.DigestHour < 0 || c.DigestHour > 23 {
		c.DigestHour = DefaultDigestHour
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Scheduler runs the digest and re-engagement jobs.
type Scheduler struct {
	activity    Activity
	sender      Sender
	subscribers Subscribers
	marks       Marks
	clusters    *emotion.Clusters
	cfg         Config
	now         func() time.Time
}

// NewScheduler creates a scheduler. marks may be nil, in which case only the
// notification ids keep runs idempotent.
func NewScheduler(activity Activity, sender Sender, subscribers Subscribers, marks Marks, clusters *emotion.Clusters, cfg Config) *Scheduler {
	if clusters == nil {
		clusters = emotion.DefaultClusters()
	}
	return &Scheduler{
		activity:    activity,
		sender:      sender,
		subscribers: subscribers,
		marks:       marks,
		clusters:    clusters,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// SendDigests sends today's digest to every subscriber who has not had it.
// Before DigestHour it does nothing. It returns how many were sent.
func (s *Scheduler) SendDigests(ctx context.Context) (int, error) {
	now := s.now().UTC()
	if now.Hour() < s.cfg.DigestHour {
		return 0, nil
	}
	users, err := s.subscribers.DigestSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list digest subscribers: %w", err)
	}
	if len(users) > s.cfg.BatchSize {
		users = users[:s.cfg.BatchSize]
	}

	day := now.Format(time.DateOnly)
	sent := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n, err := s.digest(ctx, userID, now)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Failed to build daily digest")
			continue
		}
		n.ID = stableID(userID, ReasonDailyDigest, day)
		if s.deliver(ctx, n) {
			sent++
		}
	}
	if sent > 0 {
		logging.Ctx(ctx).Info().Int("sent", sent).Str("day", day).Msg("Daily digests sent")
	}
	return sent, nil
}

// SendReEngagement nudges users with no entry for InactivityThreshold. Each
// stretch of inactivity gets one nudge. It returns how many were sent.
func (s *Scheduler) SendReEngagement(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stale, err := s.activity.Inactive(ctx, now.Add(-s.cfg.InactivityThreshold), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list inactive users: %w", err)
	}

	sent := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		b := &stale[i]
		prefs, err := s.sender.Preferences(ctx, b.UserID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", b.UserID).Msg("Failed to load preferences for re-engagement")
			continue
		}
		if !prefs.ReEngagement {
			continue
		}
		n := s.nudge(ctx, b, now)
		n.ID = stableID(b.UserID, ReasonReEngagement, b.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if s.deliver(ctx, n) {
			sent++
		}
	}
	if sent > 0 {
		logging.Ctx(ctx).Info().Int("sent", sent).Msg("Re-engagement nudges sent")
	}
	return sent, nil
}

// deliver marks and dispatches n, reporting whether it was newly sent.
func (s *Scheduler) deliver(ctx context.Context, n *notification.Notification) bool {
	if s.marks != nil {
		first, err := s.marks.CheckAndRecord(markSession, n.ID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", n.UserID).Msg("Delivery ledger unavailable, skipping scheduled notification")
			return false
		}
		if !first {
			return false
		}
	}
	if _, err := s.sender.Dispatch(ctx, n); err != nil {
		if !errors.Is(err, notification.ErrMuted) {
			logging.Ctx(ctx).Warn().Err(err).
				Str("user_id", n.UserID).
				Str("reason", n.Trigger.AlertReason).
				Msg("Failed to dispatch scheduled notification")
		}
		return false
	}
	return true
}

func (s *Scheduler) digest(ctx context.Context, userID string, now time.Time) (*notification.Notification, error) {
	recent, err := s.activity.RecentHistory(ctx, userID, themeWindow)
	if err != nil {
		return nil, err
	}
	n := &notification.Notification{
		UserID:   userID,
		Type:     alerting.TypeInfo,
		Severity: alerting.PriorityInfo,
		Action:   notification.ActionViewJournal,
		Trigger:  &alerting.TriggerData{Kind: alerting.TypeInfo, AlertReason: ReasonDailyDigest},
	}
	if len(recent) == 0 {
		n.Title = "Welcome Back"
		n.Message = "We noticed you haven't journaled recently. A daily reflection helps us understand your emotional journey better."
		n.Description = "No entries today. Consider taking a moment to journal about how you're feeling."
		return n, nil
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today := 0
	for i := range recent {
		if !recent[i].CreatedAt.Before(dayStart) {
			today++
		}
	}

	var insights []string
	if today > 0 {
		current := s.groupScores(recent[0].Vector)
		var base map[string]float64
		if b, err := s.activity.GetBaseline(ctx, userID); err == nil {
			base = s.groupScores(b.Vector)
		} else if !errors.Is(err, baseline.ErrNotFound) {
			return nil, err
		}
		delta := current[emotion.GroupPositive] - base[emotion.GroupPositive]
		switch {
		case delta > changeThreshold:
			insights = append(insights, fmt.Sprintf("Your positive emotions are stronger today than your baseline (%s).", percent(delta, base[emotion.GroupPositive])))
		case delta < -changeThreshold:
			insights = append(insights, fmt.Sprintf("You're feeling a bit lower than usual. Remember, this is temporary and we're here for you (%s).", percent(delta, base[emotion.GroupPositive])))
		}
		if current[emotion.GroupAnxiety]-base[emotion.GroupAnxiety] > changeThreshold {
			insights = append(insights, "Anxiety levels are elevated. Consider taking a break or practicing a calming technique.")
		}
	}
	if themes := s.themes(recent); len(themes) > 0 {
		insights = append(insights, "Your primary emotional themes this week have been: "+strings.Join(themes, " and ")+".")
	}
	if len(insights) == 0 {
		insights = append(insights, "Your emotional state has been stable. Keep maintaining your current well-being routine.")
	}

	n.Title = "Daily Reflection"
	n.Message = insights[0]
	n.Description = strings.Join(insights, "\n")
	n.Trigger.EntryCount = &today
	return n, nil
}

func (s *Scheduler) nudge(ctx context.Context, b *baseline.Baseline, now time.Time) *notification.Notification {
	n := &notification.Notification{
		UserID:   b.UserID,
		Type:     alerting.TypeInfo,
		Severity: alerting.PriorityInfo,
		Title:    "Welcome Back",
		Action:   notification.ActionViewJournal,
		Trigger:  &alerting.TriggerData{Kind: alerting.TypeInfo, AlertReason: ReasonReEngagement},
	}
	days := int(now.Sub(b.UpdatedAt) / (24 * time.Hour))

	last, err := s.activity.RecentHistory(ctx, b.UserID, 1)
	if err != nil || len(last) == 0 || last[0].Dominant == "" {
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("user_id", b.UserID).Msg("No history for re-engagement context")
		}
		n.Message = fmt.Sprintf("It's been %d days since your last entry. How have you been feeling lately?", days)
		return n
	}
	feeling := strings.ReplaceAll(last[0].Dominant, "_", " ")
	if last[0].Valence == emotion.ValenceNegative {
		n.Message = fmt.Sprintf("The last time you journaled, you were feeling %s. How are you doing today? We're here to support you.", feeling)
	} else {
		n.Message = fmt.Sprintf("The last time you journaled, you were feeling %s. We hope that's still the case. Tell us what's on your mind today.", feeling)
	}
	return n
}

// groupScores sums each group's scores in v.
func (s *Scheduler) groupScores(v emotion.Vector) map[string]float64 {
	out := make(map[string]float64)
	for name, score := range v {
		out[s.clusters.GroupOf(name)] += score
	}
	return out
}

// themes returns up to two named groups with the highest mean score over
// entries.
func (s *Scheduler) themes(entries []baseline.HistoryEntry) []string {
	totals := make(map[string]float64)
	for i := range entries {
		for g, score := range s.groupScores(entries[i].Vector) {
			if g != emotion.GroupOther {
				totals[g] += score
			}
		}
	}
	var out []string
	for len(out) < 2 && len(totals) > 0 {
		best, bestScore := "", 0.0
		for g, score := range totals {
			if score > bestScore || (score == bestScore && g < best) {
				best, bestScore = g, score
			}
		}
		if bestScore <= 0 {
			break
		}
		out = append(out, best)
		delete(totals, best)
	}
	return out
}

func percent(delta, base float64) string {
	if base <= 0 {
		return fmt.Sprintf("%+.2f", delta)
	}
	return fmt.Sprintf("%+.0f%%", delta/base*100)
}

func stableID(userID, reason, period string) string {
	return uuid.NewSHA1(idNamespace, []byte(userID+"\x00"+reason+"\x00"+period)).String()
}
