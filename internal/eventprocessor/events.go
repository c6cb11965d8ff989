// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package eventprocessor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/emotion"
	"github.com/tomtom215/moodlog/internal/pipeline"
)

// Validation errors.
var (
	ErrMissingUserID  = errors.New("event is missing user_id")
	ErrMissingContent = errors.New("event carries neither text nor emotions")
)

// JournalEvent is published when a journal entry is saved. Producers that
// already ran the classifier send its predictions; others send the text.
type JournalEvent struct {
	EventID     string             `json:"event_id"`
	UserID      string             `json:"user_id"`
	EntryID     string             `json:"entry_id,omitempty"`
	Text        string             `json:"text,omitempty"`
	Emotions    map[string]float64 `json:"emotions,omitempty"`
	Predictions []emotion.Pair     `json:"predictions,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// Validate checks the required fields.
func (e *JournalEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUserID
	}
	if strings.TrimSpace(e.Text) == "" && len(e.Emotions) == 0 && len(e.Predictions) == 0 {
		return ErrMissingContent
	}
	return nil
}

// Entry converts the event into a pipeline entry. Predictions and Emotions
// are merged with the higher score winning.
func (e *JournalEvent) Entry() pipeline.Entry {
	entry := pipeline.Entry{UserID: e.UserID, EntryID: e.EntryID, Text: e.Text}
	if len(e.Emotions) == 0 && len(e.Predictions) == 0 {
		return entry
	}
	raw := emotion.FromPairs(e.Predictions)
	for k, s := range e.Emotions {
		if prev, ok := raw[k]; !ok || s > prev {
			raw[k] = s
		}
	}
	entry.Emotions = raw
	return entry
}

// MarshalEvent validates and encodes an event.
func MarshalEvent(e *JournalEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// UnmarshalEvent decodes an event without validating it.
func UnmarshalEvent(data []byte) (*JournalEvent, error) {
	var e JournalEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}
