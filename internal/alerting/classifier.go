// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import (
	"errors"
	"math"

	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
)

// Config tunes the classifier rules.
type Config struct {
	// SpikeThreshold is the absolute increase over the baseline value that
	// makes a single emotion a spike. Comparison is strict.
	SpikeThreshold float64 `koanf:"spike_threshold" validate:"gt=0,lte=1"`

	// MinSamples suppresses deviation-type alerts until the baseline has at
	// least this many samples. Zero disables the warm-up.
	MinSamples int `koanf:"min_samples" validate:"gte=0"`

	// PersistentWindow is how many consecutive negative entries raise a
	// persistent-negativity pattern warning. Zero disables the rule.
	PersistentWindow int `koanf:"persistent_window" validate:"gte=0"`

	// DeliverAudit moves the BASELINE_UPDATE audit record into Alerts.
	DeliverAudit bool `koanf:"deliver_audit"`
}

// DefaultConfig returns the default rule settings.
func DefaultConfig() Config {
	return Config{
		SpikeThreshold:   0.3,
		MinSamples:       0,
		PersistentWindow: 3,
		DeliverAudit:     false,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.SpikeThreshold <= 0 || c.SpikeThreshold > 1 {
		return errors.New("spike threshold must be in (0,1]")
	}
	if c.MinSamples < 0 {
		return errors.New("min samples must not be negative")
	}
	if c.PersistentWindow < 0 {
		return errors.New("persistent window must not be negative")
	}
	return nil
}

// Input is everything the classifier looks at for one entry.
type Input struct {
	Result      deviation.Result
	Vector      emotion.Vector
	Baseline    emotion.Vector
	SampleCount int
	// RecentValences holds the dominant valence of the newest history
	// entries, newest first. It feeds the persistent-negativity rule.
	RecentValences []emotion.Valence
}

// Classifier applies the alert rules.
type Classifier struct {
	cfg      Config
	clusters *emotion.Clusters
}

// NewClassifier creates a classifier. A nil clusters uses the defaults.
func NewClassifier(cfg Config, clusters *emotion.Clusters) *Classifier {
	if clusters == nil {
		clusters = emotion.DefaultClusters()
	}
	return &Classifier{cfg: cfg, clusters: clusters}
}

// Config returns the active settings.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Clusters returns the emotion grouping the rules use.
func (c *Classifier) Clusters() *emotion.Clusters {
	return c.clusters
}

// Classify evaluates the rules in priority order. More than one rule may
// fire. When nothing fires, a BASELINE_UPDATE audit record is produced.
//
// An empty vector never raises alerts: the classifier had nothing to say
// about the entry, so there is nothing to compare.
func (c *Classifier) Classify(in Input) Classification {
	var alerts []Alert

	dominant, _, hasDominant := in.Vector.Dominant()
	warm := in.SampleCount >= c.cfg.MinSamples || c.cfg.MinSamples <= 0

	if !in.Vector.IsEmpty() {
		if warm {
			switch in.Result.Status {
			case deviation.StatusSignificant:
				if hasDominant && c.clusters.IsNegative(dominant) {
					alerts = append(alerts, riskAlert(in, dominant))
				} else {
					alerts = append(alerts, deviationAlert(in, dominant))
				}
			case deviation.StatusModerate:
				alerts = append(alerts, patternAlert(in, dominant))
			}
			alerts = append(alerts, c.spikes(in)...)
		}

		if hasDominant && c.clusters.IsPositive(dominant) && in.Result.Status == deviation.StatusStable {
			alerts = append(alerts, positiveAlert(in, dominant))
		}

		if n := c.persistentNegativity(in.RecentValences); n > 0 && !containsType(alerts, TypePattern) {
			alerts = append(alerts, persistentAlert(in, n))
		}
	}

	out := Classification{Alerts: alerts}
	if len(alerts) == 0 {
		audit := baselineUpdateAudit(in)
		out.Audit = []Alert{audit}
		if c.cfg.DeliverAudit {
			out.Alerts = []Alert{audit}
		}
	}

	group := emotion.GroupOther
	if hasDominant {
		group = c.clusters.GroupOf(dominant)
	}
	priority := PriorityInfo
	for _, a := range alerts {
		if a.Priority > priority {
			priority = a.Priority
		}
	}
	out.Recommendations = recommendationsFor(group, priority)
	out.Summary = summaryFor(alerts, dominant, in.Result.Status)
	out.SupportiveNote = supportiveNoteFor(in.Result.Status)
	if out.Alerts == nil {
		out.Alerts = []Alert{}
	}
	return out
}

// spikes returns one SPIKE_WARNING per emotion whose current score exceeds
// its baseline value by more than the threshold, ordered by emotion name.
func (c *Classifier) spikes(in Input) []Alert {
	var out []Alert
	for _, name := range in.Vector.Keys() {
		cur := in.Vector[name]
		base := in.Baseline[name]
		if cur > base+c.cfg.SpikeThreshold {
			out = append(out, spikeAlert(in, name, base, cur))
		}
	}
	return out
}

// persistentNegativity returns the run length of negative entries when it
// reaches the window, else 0.
func (c *Classifier) persistentNegativity(valences []emotion.Valence) int {
	if c.cfg.PersistentWindow <= 0 || len(valences) < c.cfg.PersistentWindow {
		return 0
	}
	run := 0
	for _, v := range valences {
		if v != emotion.ValenceNegative {
			break
		}
		run++
	}
	if run < c.cfg.PersistentWindow {
		return 0
	}
	return run
}

func containsType(alerts []Alert, t AlertType) bool {
	for _, a := range alerts {
		if a.Type == t {
			return true
		}
	}
	return false
}

// percentageChange returns the relative change in percent rounded to one
// decimal, or 0 when the baseline value is 0.
func percentageChange(base, cur float64) float64 {
	if base == 0 {
		return 0
	}
	return math.Round((cur-base)/base*1000) / 10
}
