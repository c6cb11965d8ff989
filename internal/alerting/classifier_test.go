// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func input(base, v emotion.Vector, n int, valences ...emotion.Valence) Input {
	engine := deviation.NewEngine(deviation.DefaultThresholds()).WithClock(func() time.Time { return fixedNow })
	return Input{
		Result:         engine.Evaluate(base, v),
		Vector:         v,
		Baseline:       base,
		SampleCount:    n,
		RecentValences: valences,
	}
}

func types(alerts []Alert) []AlertType {
	out := make([]AlertType, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func equalTypes(a, b []AlertType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)
	neg := emotion.ValenceNegative
	pos := emotion.ValencePositive

	tests := []struct {
		name      string
		in        Input
		want      []AlertType
		wantAudit bool
	}{
		{
			name: "stable positive entry is a milestone",
			in:   input(emotion.Vector{"joy": 0.8, "sadness": 0.1}, emotion.Vector{"joy": 0.8, "sadness": 0.1}, 5),
			want: []AlertType{TypePositiveMilestone},
		},
		{
			name: "significant negative shift is a risk with spikes",
			in: input(emotion.Vector{"joy": 0.7, "sadness": 0.05},
				emotion.Vector{"joy": 0.05, "sadness": 0.9, "grief": 0.6}, 10),
			want: []AlertType{TypeRisk, TypeSpike, TypeSpike},
		},
		{
			name: "significant shift without negative dominant is a deviation",
			in:   input(emotion.Vector{"sadness": 0.8}, emotion.Vector{"surprise": 0.4, "sadness": 0.1}, 4),
			want: []AlertType{TypeDeviation, TypeSpike},
		},
		{
			name: "moderate shift is a pattern warning",
			in:   input(emotion.Vector{"joy": 0.8}, emotion.Vector{"joy": 0.5, "anger": 0.6}, 4),
			want: []AlertType{TypePattern, TypeSpike},
		},
		{
			name: "persistent negativity does not duplicate a pattern warning",
			in:   input(emotion.Vector{"joy": 0.8}, emotion.Vector{"joy": 0.5, "anger": 0.6}, 4, neg, neg, neg),
			want: []AlertType{TypePattern, TypeSpike},
		},
		{
			name: "persistent negativity on a stable entry",
			in:   input(emotion.Vector{"sadness": 0.5}, emotion.Vector{"sadness": 0.5}, 6, neg, neg, neg, pos),
			want: []AlertType{TypePattern},
		},
		{
			name:      "broken negative run raises nothing",
			in:        input(emotion.Vector{"sadness": 0.5}, emotion.Vector{"sadness": 0.5}, 6, neg, pos, neg),
			want:      []AlertType{},
			wantAudit: true,
		},
		{
			name:      "stable neutral entry is audit only",
			in:        input(emotion.Vector{"surprise": 0.4}, emotion.Vector{"surprise": 0.4}, 3),
			want:      []AlertType{},
			wantAudit: true,
		},
		{
			name:      "empty vector raises nothing",
			in:        input(emotion.Vector{"joy": 0.5}, emotion.Vector{}, 3, neg, neg, neg),
			want:      []AlertType{},
			wantAudit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.in)
			if !equalTypes(types(got.Alerts), tt.want) {
				t.Errorf("alerts = %v, want %v", types(got.Alerts), tt.want)
			}
			if hasAudit := len(got.Audit) > 0; hasAudit != tt.wantAudit {
				t.Errorf("audit present = %v, want %v", hasAudit, tt.wantAudit)
			}
			if got.Summary == "" || got.SupportiveNote == "" {
				t.Error("summary and supportive note must always be set")
			}
			if len(got.Recommendations) == 0 || len(got.Recommendations) > 3 {
				t.Errorf("recommendations = %d, want 1..3", len(got.Recommendations))
			}
			for _, a := range got.Alerts {
				if a.Trigger.Kind != a.Type {
					t.Errorf("trigger kind %s does not match alert type %s", a.Trigger.Kind, a.Type)
				}
			}
		})
	}
}

func TestClassifyScenarioA(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)
	in := input(emotion.Vector{"joy": 0.8, "sadness": 0.1}, emotion.Vector{"joy": 0.8, "sadness": 0.1}, 5)

	if in.Result.Status != deviation.StatusStable || in.Result.Similarity < 0.999999 {
		t.Fatalf("result = %+v, want stable with similarity ~1", in.Result)
	}
	got := c.Classify(in)
	if got.Has(TypeDeviation) || got.Has(TypeRisk) {
		t.Errorf("stable entry raised %v", types(got.Alerts))
	}
}

func TestClassifyScenarioB(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)
	in := input(emotion.Vector{"joy": 0.7, "sadness": 0.05},
		emotion.Vector{"joy": 0.05, "sadness": 0.9, "grief": 0.6}, 10)

	if in.Result.Status != deviation.StatusSignificant || in.Result.DeviationScore <= 0.5 {
		t.Fatalf("result = %+v, want significant", in.Result)
	}
	got := c.Classify(in)
	p, ok := got.HighestPriority()
	if !ok || p < PriorityHigh {
		t.Fatalf("highest priority = %v, want >= high", p)
	}

	risk := got.Alerts[0]
	if risk.Type != TypeRisk || risk.Priority != PriorityCritical {
		t.Fatalf("first alert = %+v", risk)
	}
	if risk.Trigger.EmotionType != "sadness" {
		t.Errorf("risk emotion = %q, want sadness", risk.Trigger.EmotionType)
	}

	// Spikes are ordered by emotion name.
	if got.Alerts[1].Trigger.EmotionType != "grief" || got.Alerts[2].Trigger.EmotionType != "sadness" {
		t.Errorf("spike order = %s, %s", got.Alerts[1].Trigger.EmotionType, got.Alerts[2].Trigger.EmotionType)
	}
	if pct := *got.Alerts[1].Trigger.PercentageChange; pct != 0 {
		t.Errorf("grief had no baseline, percentage change = %v, want 0", pct)
	}
	if pct := *got.Alerts[2].Trigger.PercentageChange; pct != 1700 {
		t.Errorf("sadness percentage change = %v, want 1700", pct)
	}

	for _, r := range got.Recommendations {
		if r.Priority != PriorityCritical {
			t.Errorf("recommendation priority = %v, want critical", r.Priority)
		}
	}
	if len(got.Recommendations) != 3 {
		t.Errorf("recommendations = %d, want 3", len(got.Recommendations))
	}
}

func TestClassifySpikeThresholdIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpikeThreshold = 0.25
	c := NewClassifier(cfg, nil)

	// 0.75 - 0.5 == 0.25 exactly in binary floating point.
	in := input(emotion.Vector{"fear": 0.5}, emotion.Vector{"fear": 0.75}, 4)
	if got := c.Classify(in); got.Has(TypeSpike) {
		t.Error("increase equal to the threshold must not spike")
	}
	in = input(emotion.Vector{"fear": 0.5}, emotion.Vector{"fear": 0.8}, 4)
	if got := c.Classify(in); !got.Has(TypeSpike) {
		t.Error("increase above the threshold must spike")
	}
}

func TestClassifyWarmUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 5
	c := NewClassifier(cfg, nil)

	cold := input(emotion.Vector{"joy": 0.7, "sadness": 0.05},
		emotion.Vector{"joy": 0.05, "sadness": 0.9, "grief": 0.6}, 2)
	got := c.Classify(cold)
	if len(got.Alerts) != 0 {
		t.Errorf("cold baseline raised %v", types(got.Alerts))
	}

	warm := cold
	warm.SampleCount = 5
	if got := c.Classify(warm); !got.Has(TypeRisk) {
		t.Error("warm baseline should raise a risk alert")
	}
}

func TestClassifyDeliverAudit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeliverAudit = true
	c := NewClassifier(cfg, nil)

	got := c.Classify(input(emotion.Vector{"surprise": 0.4}, emotion.Vector{"surprise": 0.4}, 7))
	if !equalTypes(types(got.Alerts), []AlertType{TypeBaselineUpdate}) {
		t.Fatalf("alerts = %v", types(got.Alerts))
	}
	if got.Alerts[0].Priority != PriorityLow {
		t.Errorf("audit priority = %v, want low", got.Alerts[0].Priority)
	}
	if !strings.Contains(got.Alerts[0].Message, "#7") {
		t.Errorf("audit message = %q", got.Alerts[0].Message)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier(DefaultConfig(), nil)
	in := input(emotion.Vector{"joy": 0.7, "sadness": 0.05},
		emotion.Vector{"joy": 0.05, "sadness": 0.9, "grief": 0.6, "fear": 0.4}, 10)

	first, _ := json.Marshal(c.Classify(in))
	for i := 0; i < 20; i++ {
		again, _ := json.Marshal(c.Classify(in))
		if string(again) != string(first) {
			t.Fatal("classification output is not deterministic")
		}
	}
}

func TestPriority(t *testing.T) {
	if !(PriorityInfo < PriorityLow && PriorityLow < PriorityMedium && PriorityMedium < PriorityHigh && PriorityHigh < PriorityCritical) {
		t.Error("priorities are not ordered")
	}

	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"info", PriorityInfo, false},
		{"HIGH", PriorityHigh, false},
		{"moderate", PriorityMedium, false},
		{" critical ", PriorityCritical, false},
		{"urgent", PriorityInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	data, err := json.Marshal(Alert{Type: TypeRisk, Priority: PriorityCritical, Trigger: TriggerData{Kind: TypeRisk}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"priority":"critical"`) {
		t.Errorf("priority not encoded by name: %s", data)
	}
	if strings.Contains(string(data), "baselineValue") {
		t.Errorf("unset trigger fields must be omitted: %s", data)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.SpikeThreshold = 0
	if bad.Validate() == nil {
		t.Error("zero spike threshold should be rejected")
	}
	bad = DefaultConfig()
	bad.MinSamples = -1
	if bad.Validate() == nil {
		t.Error("negative min samples should be rejected")
	}
}
