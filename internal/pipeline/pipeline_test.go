// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/baseline"
	"github.com/tomtom215/moodlog/internal/classifier"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type countingPusher struct {
	mu     sync.Mutex
	events map[string]int
}

func (p *countingPusher) SendToUser(_, event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string]int{}
	}
	p.events[event]++
}

func (p *countingPusher) SendToRole(string, string, any) {}

func (p *countingPusher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[event]
}

type stubClassifier struct {
	scores map[string]float64
	err    error
}

func (s stubClassifier) Classify(context.Context, string) (map[string]float64, error) {
	return s.scores, s.err
}

type failingReports struct{}

func (failingReports) SaveReport(context.Context, *Report) error {
	return errors.New("disk full")
}

func (failingReports) GetReport(context.Context, string) (*Report, error) {
	return nil, ErrNoReport
}

// flakyReports fails the next failures calls to SaveReport.
type flakyReports struct {
	*MemoryReportStore
	mu       sync.Mutex
	failures int
}

func (r *flakyReports) SaveReport(ctx context.Context, report *Report) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.MemoryReportStore.SaveReport(ctx, report)
}

type fixture struct {
	pipeline   *Pipeline
	baselines  *baseline.MemoryStore
	notes      *notification.MemoryStore
	dispatcher *notification.Dispatcher
	pusher     *countingPusher
}

func newFixture(t *testing.T, cls classifier.Classifier, cooldowns *alerting.Cooldowns, reports ReportStore) *fixture {
	t.Helper()
	clock := func() time.Time { return t0 }
	f := &fixture{
		baselines: baseline.NewMemoryStore(),
		notes:     notification.NewMemoryStore(),
		pusher:    &countingPusher{},
	}
	if reports == nil {
		reports = NewMemoryReportStore()
	}
	clusters := emotion.DefaultClusters()
	f.dispatcher = notification.NewDispatcher(f.notes, f.pusher, nil, 0).WithClock(clock)
	f.pipeline = New(Deps{
		Classifier: cls,
		Aggregator: baseline.NewAggregator(f.baselines, clusters),
		Engine:     deviation.NewEngine(deviation.DefaultThresholds()).WithClock(clock),
		Rules:      alerting.NewClassifier(alerting.DefaultConfig(), clusters),
		Cooldowns:  cooldowns,
		Dispatcher: f.dispatcher,
		Reports:    reports,
	}).WithClock(clock)
	return f
}

func (f *fixture) seed(t *testing.T, userID string, v emotion.Vector, n int) {
	t.Helper()
	err := f.baselines.SaveBaseline(context.Background(), &baseline.Baseline{
		UserID: userID, Vector: v, SampleCount: n, CreatedAt: t0, UpdatedAt: t0,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func alertTypes(ns []*notification.Notification) map[alerting.AlertType]int {
	out := map[alerting.AlertType]int{}
	for _, n := range ns {
		out[n.Type]++
	}
	return out
}

func TestProcessStableEntry(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.8, "sadness": 0.1}, 5)

	out, err := f.pipeline.Process(context.Background(), Entry{
		UserID:   "alice",
		EntryID:  "e1",
		Emotions: map[string]float64{"joy": 0.8, "sadness": 0.1},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	d := out.Report.Deviation
	if math.Abs(d.Similarity-1) > 1e-9 || d.DeviationScore > 1e-9 || d.Status != deviation.StatusStable {
		t.Errorf("deviation = %+v, want stable self-similarity", d)
	}
	types := alertTypes(out.Notifications)
	if types[alerting.TypeDeviation] != 0 || types[alerting.TypeRisk] != 0 {
		t.Errorf("unexpected deviation alerts: %v", types)
	}
	if types[alerting.TypePositiveMilestone] != 1 {
		t.Errorf("want one positive milestone, got %v", types)
	}
	if out.Report.SampleCount != 6 {
		t.Errorf("SampleCount = %d, want 6", out.Report.SampleCount)
	}
}

func TestProcessSignificantNegativeShift(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)

	out, err := f.pipeline.Process(context.Background(), Entry{
		UserID:   "alice",
		EntryID:  "e2",
		Emotions: map[string]float64{"joy": 0.05, "sadness": 0.9, "grief": 0.6},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if out.Report.Deviation.Status != deviation.StatusSignificant || out.Report.Deviation.DeviationScore <= 0.5 {
		t.Fatalf("deviation = %+v, want significant", out.Report.Deviation)
	}

	var risk *notification.Notification
	for _, n := range out.Notifications {
		if n.Type == alerting.TypeRisk || n.Type == alerting.TypeDeviation {
			risk = n
		}
	}
	if risk == nil || risk.Severity < alerting.PriorityHigh {
		t.Fatalf("want a high priority risk or deviation notification, got %v", alertTypes(out.Notifications))
	}
	if risk.JournalID != "e2" || risk.Action == notification.ActionNone {
		t.Errorf("notification = %+v", risk)
	}

	if got := f.pusher.count(notification.EventNew); got != len(out.Notifications) {
		t.Errorf("pushed %d, dispatched %d", got, len(out.Notifications))
	}
	stored, total, _ := f.notes.List(context.Background(), "alice", notification.Filter{})
	if total != len(out.Notifications) || len(stored) != total {
		t.Errorf("stored %d notifications, want %d", total, len(out.Notifications))
	}
}

func TestProcessEmptyVector(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	base := emotion.Vector{"joy": 0.6}
	f.seed(t, "alice", base, 4)

	out, err := f.pipeline.Process(context.Background(), Entry{UserID: "alice", Emotions: map[string]float64{}})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	b, _ := f.baselines.GetBaseline(context.Background(), "alice")
	if b.SampleCount != 4 || b.Vector["joy"] != 0.6 {
		t.Errorf("baseline changed: %+v", b)
	}
	if out.Report.Deviation.Similarity != 0 {
		t.Errorf("Similarity = %v, want 0", out.Report.Deviation.Similarity)
	}
	if len(out.Notifications) != 0 {
		t.Errorf("empty vector dispatched %d notifications", len(out.Notifications))
	}
}

func TestProcessCooldownSuppressesRepeat(t *testing.T) {
	cooldowns := alerting.NewCooldowns(nil, 0, 100).WithClock(func() time.Time { return t0 })
	f := newFixture(t, nil, cooldowns, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)
	entry := Entry{UserID: "alice", Emotions: map[string]float64{"joy": 0.05, "sadness": 0.9, "grief": 0.6}}

	first, err := f.pipeline.Process(context.Background(), entry)
	if err != nil {
		t.Fatal(err)
	}
	if alertTypes(first.Notifications)[alerting.TypeRisk] != 1 {
		t.Fatalf("first run should deliver a risk alert, got %v", alertTypes(first.Notifications))
	}

	second, err := f.pipeline.Process(context.Background(), entry)
	if err != nil {
		t.Fatal(err)
	}
	if alertTypes(second.Notifications)[alerting.TypeRisk] != 0 {
		t.Error("repeat risk alert should be suppressed")
	}
	found := false
	for _, s := range second.Suppressed {
		if s.Alert.Type == alerting.TypeRisk && s.Reason == alerting.ReasonCooldown {
			found = true
		}
	}
	if !found {
		t.Errorf("Suppressed = %+v, want the risk alert", second.Suppressed)
	}
	// The report still carries everything the rules found.
	if !containsAlert(second.Report.Alerts, alerting.TypeRisk) {
		t.Error("report should list the suppressed risk alert")
	}
}

func TestProcessPersistentNegativity(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	entry := Entry{UserID: "alice", Emotions: map[string]float64{"sadness": 0.8}}

	for i := 1; i <= 3; i++ {
		out, err := f.pipeline.Process(context.Background(), entry)
		if err != nil {
			t.Fatal(err)
		}
		patterns := alertTypes(out.Notifications)[alerting.TypePattern]
		if i < 3 && patterns != 0 {
			t.Errorf("run %d: unexpected pattern warning", i)
		}
		if i == 3 && patterns != 1 {
			t.Errorf("run %d: want pattern warning, got %v", i, alertTypes(out.Notifications))
		}
	}
}

func TestProcessClassifiesText(t *testing.T) {
	cls := stubClassifier{scores: map[string]float64{"Joy": 1.4, "fear": math.NaN()}}
	f := newFixture(t, cls, nil, nil)

	out, err := f.pipeline.Process(context.Background(), Entry{UserID: "alice", Text: "a lovely day"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Report.Emotions["joy"] != 1 || out.Report.Emotions["fear"] != 0 {
		t.Errorf("Emotions = %v, want sanitized scores", out.Report.Emotions)
	}
}

func TestProcessDegradesWhenClassifierUnavailable(t *testing.T) {
	tests := []struct {
		name string
		cls  classifier.Classifier
	}{
		{"unavailable", stubClassifier{err: classifier.ErrUnavailable}},
		{"not configured", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cls, nil, nil)
			out, err := f.pipeline.Process(context.Background(), Entry{UserID: "alice", Text: "hello"})
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if !out.Degraded || out.Report != nil || len(out.Notifications) != 0 {
				t.Errorf("Outcome = %+v, want degraded", out)
			}
			if _, err := f.baselines.GetBaseline(context.Background(), "alice"); !errors.Is(err, baseline.ErrNotFound) {
				t.Error("degraded run must not touch the baseline")
			}
		})
	}
}

func TestProcessInvalidEntry(t *testing.T) {
	f := newFixture(t, stubClassifier{err: classifier.ErrEmptyText}, nil, nil)
	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing user", Entry{Emotions: map[string]float64{"joy": 1}}},
		{"no content", Entry{UserID: "alice"}},
		{"classifier rejects text", Entry{UserID: "alice", Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.pipeline.Process(context.Background(), tt.entry); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Process() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestProcessReportFailureAbortsBeforeDispatch(t *testing.T) {
	f := newFixture(t, nil, nil, failingReports{})
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)

	_, err := f.pipeline.Process(context.Background(), Entry{
		UserID:   "alice",
		Emotions: map[string]float64{"sadness": 0.9},
	})
	if err == nil {
		t.Fatal("Process() should fail when the report cannot be stored")
	}
	if f.pusher.count(notification.EventNew) != 0 {
		t.Error("nothing may be pushed after a storage failure")
	}
}

func TestLatest(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	if _, err := f.pipeline.Latest(context.Background(), "alice"); !errors.Is(err, ErrNoReport) {
		t.Fatalf("Latest() error = %v, want ErrNoReport", err)
	}

	for _, id := range []string{"e1", "e2"} {
		if _, err := f.pipeline.Process(context.Background(), Entry{UserID: "alice", EntryID: id, Emotions: map[string]float64{"joy": 0.5}}); err != nil {
			t.Fatal(err)
		}
	}
	r, err := f.pipeline.Latest(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if r.EntryID != "e2" || r.SampleCount != 2 || !r.CreatedAt.Equal(t0) {
		t.Errorf("Latest() = %+v", r)
	}
}

func TestProcessRetryAfterReportFailure(t *testing.T) {
	reports := &flakyReports{MemoryReportStore: NewMemoryReportStore(), failures: 1}
	f := newFixture(t, nil, nil, reports)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)
	entry := Entry{UserID: "alice", EntryID: "e1", Emotions: map[string]float64{"joy": 0.05, "sadness": 0.9, "grief": 0.6}}
	ctx := context.Background()

	if _, err := f.pipeline.Process(ctx, entry); err == nil {
		t.Fatal("first run should fail")
	}
	after, err := f.baselines.GetBaseline(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.pipeline.Process(ctx, entry)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if out.Report.SampleCount != after.SampleCount || after.SampleCount != 11 {
		t.Errorf("SampleCount = %d after retry, %d after first run, want 11", out.Report.SampleCount, after.SampleCount)
	}
	history, _ := f.baselines.RecentHistory(ctx, "alice", 10)
	if len(history) != 1 {
		t.Errorf("history = %d rows, want 1", len(history))
	}
	if len(out.Notifications) == 0 || f.pusher.count(notification.EventNew) != len(out.Notifications) {
		t.Errorf("pushed %d, dispatched %d", f.pusher.count(notification.EventNew), len(out.Notifications))
	}

	// A third run of the same entry dispatches nothing new.
	if _, err := f.pipeline.Process(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if got := f.pusher.count(notification.EventNew); got != len(out.Notifications) {
		t.Errorf("pushed %d after replay, want %d", got, len(out.Notifications))
	}
	_, total, _ := f.notes.List(ctx, "alice", notification.Filter{})
	if total != len(out.Notifications) {
		t.Errorf("stored %d notifications, want %d", total, len(out.Notifications))
	}
}

func TestProcessDeliversEverySpike(t *testing.T) {
	cooldowns := alerting.NewCooldowns(nil, 0, 100).WithClock(func() time.Time { return t0 })
	f := newFixture(t, nil, cooldowns, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)

	out, err := f.pipeline.Process(context.Background(), Entry{
		UserID:   "alice",
		EntryID:  "e1",
		Emotions: map[string]float64{"joy": 0.05, "sadness": 0.9, "grief": 0.6},
	})
	if err != nil {
		t.Fatal(err)
	}
	spiked := map[string]bool{}
	for _, n := range out.Notifications {
		if n.Type == alerting.TypeSpike {
			spiked[n.Trigger.EmotionType] = true
		}
	}
	if !spiked["sadness"] || !spiked["grief"] {
		t.Errorf("spikes delivered = %v, want sadness and grief", spiked)
	}
	for _, s := range out.Suppressed {
		t.Errorf("unexpected suppression: %s %s", s.Alert.Type, s.Reason)
	}
}

func TestProcessDeteriorationBypassesCooldown(t *testing.T) {
	cooldowns := alerting.NewCooldowns(nil, 1000, 100).WithClock(func() time.Time { return t0 })
	f := newFixture(t, nil, cooldowns, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)
	ctx := context.Background()
	low := map[string]float64{"sadness": 0.9, "grief": 0.6}

	runs := []struct {
		entryID  string
		emotions map[string]float64
		wantRisk int
	}{
		{"e1", low, 1},
		{"e2", low, 0},
		{"e3", map[string]float64{"sadness": 0.9, "grief": 0.9, "fear": 0.95}, 1},
	}
	for _, run := range runs {
		out, err := f.pipeline.Process(ctx, Entry{UserID: "alice", EntryID: run.entryID, Emotions: run.emotions})
		if err != nil {
			t.Fatal(err)
		}
		if got := alertTypes(out.Notifications)[alerting.TypeRisk]; got != run.wantRisk {
			t.Errorf("%s: risk delivered = %d, want %d (suppressed %+v)", run.entryID, got, run.wantRisk, out.Suppressed)
		}
	}
}

func TestProcessSerializesSameUser(t *testing.T) {
	cooldowns := alerting.NewCooldowns(nil, 1000, 100).WithClock(func() time.Time { return t0 })
	f := newFixture(t, nil, cooldowns, nil)
	f.seed(t, "alice", emotion.Vector{"joy": 0.7, "sadness": 0.05}, 10)
	ctx := context.Background()

	const runs = 8
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.pipeline.Process(ctx, Entry{
				UserID:   "alice",
				EntryID:  "e" + string(rune('a'+i)),
				Emotions: map[string]float64{"sadness": 0.9, "grief": 0.6},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	b, _ := f.baselines.GetBaseline(ctx, "alice")
	if b.SampleCount != 10+runs {
		t.Errorf("SampleCount = %d, want %d", b.SampleCount, 10+runs)
	}
	stored, _, _ := f.notes.List(ctx, "alice", notification.Filter{Limit: 100})
	storedPtrs := make([]*notification.Notification, len(stored))
	for i := range stored {
		storedPtrs[i] = &stored[i]
	}
	if got := alertTypes(storedPtrs)[alerting.TypeRisk]; got != 1 {
		t.Errorf("risk notifications = %d, want 1 across concurrent runs", got)
	}
}

func TestProcessRespectsPreferences(t *testing.T) {
	cooldowns := alerting.NewCooldowns(nil, 0, 100).WithClock(func() time.Time { return t0 })
	f := newFixture(t, nil, cooldowns, nil)
	prefs := notification.NewMemoryPreferenceStore()
	f.dispatcher.WithPreferences(prefs, notification.DefaultTypes(false))
	ctx := context.Background()

	p := notification.DefaultPreferences("alice")
	p.Types[alerting.TypePositiveMilestone] = false
	if err := prefs.SavePreferences(ctx, &p); err != nil {
		t.Fatal(err)
	}
	f.seed(t, "alice", emotion.Vector{"joy": 0.8, "sadness": 0.1}, 5)

	for _, id := range []string{"e1", "e2"} {
		out, err := f.pipeline.Process(ctx, Entry{UserID: "alice", EntryID: id, Emotions: map[string]float64{"joy": 0.8, "sadness": 0.1}})
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Notifications) != 0 {
			t.Errorf("%s: delivered %v, want nothing", id, alertTypes(out.Notifications))
		}
		// A muted alert never starts a cooldown.
		if len(out.Suppressed) != 1 || out.Suppressed[0].Reason != ReasonPreference {
			t.Errorf("%s: Suppressed = %+v, want one preference suppression", id, out.Suppressed)
		}
	}

	// Critical alerts reach users who turned everything off.
	p.Enabled = false
	if err := prefs.SavePreferences(ctx, &p); err != nil {
		t.Fatal(err)
	}
	out, err := f.pipeline.Process(ctx, Entry{UserID: "alice", EntryID: "e3", Emotions: map[string]float64{"joy": 0.05, "sadness": 0.9, "grief": 0.6}})
	if err != nil {
		t.Fatal(err)
	}
	types := alertTypes(out.Notifications)
	if types[alerting.TypeRisk] != 1 || len(out.Notifications) != 1 {
		t.Errorf("delivered %v, want only the risk alert", types)
	}
}

func TestProcessBaselineUpdateAudit(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	events := audit.NewMemoryStore(10)
	logger := audit.NewLogger(events, audit.DefaultConfig())
	f.pipeline.deps.Audit = logger
	prefs := notification.NewMemoryPreferenceStore()
	f.dispatcher.WithPreferences(prefs, notification.DefaultTypes(false))
	ctx := context.Background()
	f.seed(t, "alice", emotion.Vector{"neutral": 0.6}, 5)
	f.seed(t, "bob", emotion.Vector{"neutral": 0.6}, 5)

	p := notification.DefaultPreferences("bob")
	p.Types[alerting.TypeBaselineUpdate] = true
	if err := prefs.SavePreferences(ctx, &p); err != nil {
		t.Fatal(err)
	}

	for _, user := range []string{"alice", "bob"} {
		out, err := f.pipeline.Process(ctx, Entry{UserID: user, EntryID: "e1", Emotions: map[string]float64{"neutral": 0.6}})
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Report.Alerts) != 0 {
			t.Errorf("%s: report alerts = %+v, want none", user, out.Report.Alerts)
		}
		want := 0
		if user == "bob" {
			want = 1
		}
		if got := alertTypes(out.Notifications)[alerting.TypeBaselineUpdate]; got != want {
			t.Errorf("%s: baseline updates delivered = %d, want %d", user, got, want)
		}
	}

	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	n, err := events.Count(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypeBaselineUpdate}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("audit events = %d, want 2", n)
	}
}

func containsAlert(alerts []alerting.Alert, t alerting.AlertType) bool {
	for _, a := range alerts {
		if a.Type == t {
			return true
		}
	}
	return false
}
