// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package emotion

import (
	"math"
	"strings"

	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
)

// Sanitize is the only place classifier output is validated. Every score is
// forced into [0,1]: non-finite values become 0 and out-of-range values are
// clamped. Names are trimmed and lower-cased; blank names are dropped. When two
// raw names normalize to the same key the larger score is kept.
//
// Sanitize never fails. Input with no usable scores yields an empty Vector.
func Sanitize(raw map[string]float64) Vector {
	out := make(Vector, len(raw))
	for name, score := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			logging.Warn().Str("raw_name", name).Msg("Dropping emotion with blank name")
			metrics.RecordSanitized("blank_name")
			continue
		}

		switch {
		case math.IsNaN(score) || math.IsInf(score, 0):
			logging.Warn().Str("emotion", key).Msg("Non-finite emotion score coerced to 0")
			metrics.RecordSanitized("non_finite")
			score = 0
		case score < 0:
			logging.Warn().Str("emotion", key).Float64("score", score).Msg("Negative emotion score clamped to 0")
			metrics.RecordSanitized("clamped")
			score = 0
		case score > 1:
			logging.Warn().Str("emotion", key).Float64("score", score).Msg("Emotion score clamped to 1")
			metrics.RecordSanitized("clamped")
			score = 1
		}

		if prev, ok := out[key]; ok && prev >= score {
			continue
		}
		out[key] = score
	}
	return out
}
