// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import "github.com/tomtom215/moodlog/internal/emotion"

// DeteriorationThreshold is the relative rise in distress between the two
// newest entries above which cooldowns are bypassed.
const DeteriorationThreshold = 0.2

// Deteriorating reports whether distress rose by more than
// DeteriorationThreshold from the previous entry to the newest one. recent is
// ordered newest first; fewer than two entries never deteriorate. Distress is
// the summed score of the depression, anxiety and stress groups. A previous
// distress of zero is treated as one.
func Deteriorating(recent []emotion.Vector, clusters *emotion.Clusters) bool {
	if len(recent) < 2 {
		return false
	}
	if clusters == nil {
		clusters = emotion.DefaultClusters()
	}
	cur := distress(recent[0], clusters)
	prev := distress(recent[1], clusters)
	base := prev
	if base == 0 {
		base = 1
	}
	return (cur-prev)/base > DeteriorationThreshold
}

func distress(v emotion.Vector, clusters *emotion.Clusters) float64 {
	var sum float64
	for name, score := range v {
		switch clusters.GroupOf(name) {
		case emotion.GroupDepression, emotion.GroupAnxiety, emotion.GroupStress:
			sum += score
		}
	}
	return sum
}
