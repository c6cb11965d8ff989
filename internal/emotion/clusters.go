// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package emotion

import "strings"

// Valence classifies an emotion as positive, negative or neutral.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceNeutral  Valence = "neutral"
)

// Group names used to pick recommendations.
const (
	GroupDepression = "depression"
	GroupAnxiety    = "anxiety"
	GroupStress     = "stress"
	GroupPositive   = "positive"
	GroupOther      = "other"
)

// DefaultPositive is the default positive cluster.
var DefaultPositive = []string{
	"joy", "relief", "amusement", "excitement", "optimism", "pride",
	"love", "gratitude", "approval", "caring", "admiration", "desire",
}

// DefaultNegative is the default negative cluster.
var DefaultNegative = []string{
	"grief", "sadness", "fear", "embarrassment", "nervousness", "annoyance",
	"disgust", "confusion", "disappointment", "anger", "disapproval", "remorse",
}

// DefaultGroups maps the negative emotions onto the three distress groups.
var DefaultGroups = map[string][]string{
	GroupDepression: {"sadness", "grief", "disappointment", "remorse"},
	GroupAnxiety:    {"fear", "nervousness", "confusion", "embarrassment"},
	GroupStress:     {"anger", "annoyance", "disgust", "disapproval"},
}

// Clusters is the valence lookup table. The classifier's label set is open,
// so membership is configuration, not code.
type Clusters struct {
	valence map[string]Valence
	group   map[string]string
}

// NewClusters builds a lookup table. Names are normalized the same way
// Sanitize normalizes keys. A name listed as both positive and negative is
// treated as negative. Positive names always belong to GroupPositive.
func NewClusters(positive, negative []string, groups map[string][]string) *Clusters {
	c := &Clusters{
		valence: make(map[string]Valence, len(positive)+len(negative)),
		group:   make(map[string]string),
	}
	for _, name := range positive {
		key := normalize(name)
		c.valence[key] = ValencePositive
		c.group[key] = GroupPositive
	}
	for _, name := range negative {
		key := normalize(name)
		c.valence[key] = ValenceNegative
		delete(c.group, key)
	}
	for g, names := range groups {
		for _, name := range names {
			key := normalize(name)
			if c.valence[key] != ValencePositive {
				c.group[key] = g
			}
		}
	}
	return c
}

// DefaultClusters returns the built-in tables.
func DefaultClusters() *Clusters {
	return NewClusters(DefaultPositive, DefaultNegative, DefaultGroups)
}

// Valence returns the valence of name; unknown names are neutral.
func (c *Clusters) Valence(name string) Valence {
	if v, ok := c.valence[normalize(name)]; ok {
		return v
	}
	return ValenceNeutral
}

// IsPositive reports whether name is in the positive cluster.
func (c *Clusters) IsPositive(name string) bool {
	return c.Valence(name) == ValencePositive
}

// IsNegative reports whether name is in the negative cluster.
func (c *Clusters) IsNegative(name string) bool {
	return c.Valence(name) == ValenceNegative
}

// GroupOf returns the recommendation group of name, GroupOther when unmapped.
func (c *Clusters) GroupOf(name string) string {
	if g, ok := c.group[normalize(name)]; ok {
		return g
	}
	return GroupOther
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
