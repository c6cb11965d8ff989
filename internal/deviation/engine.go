// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package deviation compares a journal entry's emotion vector with the
// user's baseline using cosine similarity and buckets the distance into a
// status band.
package deviation

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/moodlog/internal/emotion"
)

// Status is the deviation band of one evaluation.
type Status string

const (
	StatusStable      Status = "stable"
	StatusModerate    Status = "moderate"
	StatusSignificant Status = "significant"
)

// Thresholds are the band boundaries on the deviation score. A score must be
// strictly greater than a boundary to enter the band above it.
type Thresholds struct {
	Significant float64 `json:"significant" koanf:"significant"`
	Moderate    float64 `json:"moderate" koanf:"moderate"`
}

// DefaultThresholds returns the product defaults (0.5 / 0.3).
func DefaultThresholds() Thresholds {
	return Thresholds{Significant: 0.5, Moderate: 0.3}
}

// Validate checks that both boundaries lie in (0,1) and are ordered.
func (t Thresholds) Validate() error {
	if t.Moderate <= 0 || t.Moderate >= 1 {
		return fmt.Errorf("moderate threshold must be in (0,1), got %v", t.Moderate)
	}
	if t.Significant <= 0 || t.Significant >= 1 {
		return fmt.Errorf("significant threshold must be in (0,1), got %v", t.Significant)
	}
	if t.Moderate >= t.Significant {
		return fmt.Errorf("moderate threshold (%v) must be below significant threshold (%v)", t.Moderate, t.Significant)
	}
	return nil
}

// Result is the outcome of one evaluation.
type Result struct {
	Similarity     float64   `json:"similarity"`
	DeviationScore float64   `json:"deviationScore"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Engine evaluates entries against baselines. It holds no per-user state and
// is safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds, now: time.Now}
}

// WithClock overrides the timestamp source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Thresholds returns the configured band boundaries.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate scores v against baseline.
func (e *Engine) Evaluate(baseline, v emotion.Vector) Result {
	sim := Similarity(baseline, v)
	score := 1 - sim
	return Result{
		Similarity:     sim,
		DeviationScore: score,
		Status:         e.Classify(score),
		Timestamp:      e.now().UTC(),
	}
}

// Classify maps a deviation score to its band.
func (e *Engine) Classify(score float64) Status {
	switch {
	case score > e.thresholds.Significant:
		return StatusSignificant
	case score > e.thresholds.Moderate:
		return StatusModerate
	default:
		return StatusStable
	}
}

// Similarity is the cosine similarity of a and b over the union of their
// keys, a missing key counting as 0. If either side has zero magnitude the
// similarity is 0. Scores are non-negative, so the result lies in [0,1]; it
// is clamped to absorb rounding.
func Similarity(a, b emotion.Vector) float64 {
	var dot, na, nb float64
	for _, k := range emotion.UnionKeys(a, b) {
		x, y := a[k], b[k]
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	// sqrt(na*nb) keeps self-similarity exactly 1: dot == na == nb and
	// sqrt(x*x) == x in binary floating point.
	sim := dot / math.Sqrt(na*nb)
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < 0:
		return 0
	}
	return sim
}
