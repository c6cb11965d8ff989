// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package classifier turns journal text into raw emotion scores by calling
// an external model. Scores are returned unsanitized; callers pass them
// through emotion.Sanitize.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/moodlog/internal/config"
)

// Sentinel errors.
var (
	// ErrUnavailable means the model could not be reached or answered with a
	// server error. Callers degrade instead of failing the journal write.
	ErrUnavailable = errors.New("emotion classifier unavailable")
	ErrEmptyText   = errors.New("text is required")
)

// Classifier scores text against the model's emotion labels.
type Classifier interface {
	Classify(ctx context.Context, text string) (map[string]float64, error)
}

// Disabled is the classifier used when no provider is configured.
type Disabled struct{}

// Classify implements Classifier.
func (Disabled) Classify(context.Context, string) (map[string]float64, error) {
	return nil, fmt.Errorf("%w: no provider configured", ErrUnavailable)
}

// New builds the classifier selected by cfg. labels is the label set the
// OpenAI provider is asked to score.
func New(cfg config.ClassifierConfig, labels []string) (Classifier, error) {
	var c Classifier
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return Disabled{}, nil
	case "http":
		c = NewHTTPClassifier(cfg.URL, cfg.Timeout)
	case "openai":
		c = NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, labels)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if cfg.BreakerEnabled {
		c = NewBreaker("classifier-"+strings.ToLower(cfg.Provider), c)
	}
	return c, nil
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}
