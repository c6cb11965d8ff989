// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package emotion defines the emotion vector produced by the classifier for a
// journal entry, the single sanitization boundary for classifier output, and
// the valence clusters used to interpret the dominant emotion.
package emotion

import (
	"math"
	"sort"
)

// Vector maps an emotion name to an intensity in [0,1]. The key set is open:
// the classifier may emit a different set of emotions for every entry.
//
// Vectors handed to the rest of the pipeline always come from Sanitize.
type Vector map[string]float64

// Pair is a single (label, score) prediction as returned by the classifier service.
type Pair struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// FromPairs converts a prediction list into a raw map. When a label repeats,
// the highest score wins. The result still has to go through Sanitize.
func FromPairs(pairs []Pair) map[string]float64 {
	raw := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		if prev, ok := raw[p.Label]; ok && prev >= p.Score {
			continue
		}
		raw[p.Label] = p.Score
	}
	return raw
}

// IsEmpty reports whether v has no dimensions.
func (v Vector) IsEmpty() bool {
	return len(v) == 0
}

// Get returns the score for name, 0 when absent.
func (v Vector) Get(name string) float64 {
	return v[name]
}

// Keys returns the emotion names in ascending order.
func (v Vector) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float64 {
	var sum float64
	for _, s := range v {
		sum += s * s
	}
	return math.Sqrt(sum)
}

// Clone returns an independent copy of v. A nil vector clones to an empty one.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}

// Dominant returns the highest scoring emotion. Ties resolve to the
// lexicographically smallest name so the result is stable. ok is false for an
// empty vector or one where every score is zero.
func (v Vector) Dominant() (name string, score float64, ok bool) {
	for _, k := range v.Keys() {
		if s := v[k]; s > score {
			name, score, ok = k, s, true
		}
	}
	return name, score, ok
}

// UnionKeys returns the sorted union of the keys of a and b.
func UnionKeys(a, b Vector) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
