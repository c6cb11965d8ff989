// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package eventprocessor

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
	"github.com/tomtom215/moodlog/internal/pipeline"
)

// Processor runs one entry through the deviation pipeline.
type Processor interface {
	Process(ctx context.Context, e pipeline.Entry) (*pipeline.Outcome, error)
}

// JournalHandler adapts a Processor to a watermill handler.
type JournalHandler struct {
	processor Processor
}

// NewJournalHandler creates a handler.
func NewJournalHandler(p Processor) *JournalHandler {
	return &JournalHandler{processor: p}
}

// Handle implements message.NoPublishHandlerFunc. Returning nil acks the
// message; an error hands it to the retry and poison queue middleware.
func (h *JournalHandler) Handle(msg *message.Message) error {
	ctx := msg.Context()
	if cid := msg.Metadata.Get("correlation_id"); cid != "" {
		ctx = logging.ContextWithCorrelationID(ctx, cid)
	} else {
		ctx = logging.ContextWithCorrelationID(ctx, msg.UUID)
	}
	log := logging.Ctx(ctx)

	event, err := UnmarshalEvent(msg.Payload)
	if err != nil {
		metrics.RecordEvent("parse_error")
		log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed journal event")
		return nil
	}
	if err := event.Validate(); err != nil {
		metrics.RecordEvent("invalid")
		log.Warn().Err(err).Str("event_id", event.EventID).Msg("Dropping invalid journal event")
		return nil
	}

	out, err := h.processor.Process(ctx, event.Entry())
	switch {
	case errors.Is(err, pipeline.ErrInvalidEntry):
		metrics.RecordEvent("invalid")
		log.Warn().Err(err).Str("event_id", event.EventID).Msg("Journal event rejected by pipeline")
		return nil
	case err != nil:
		metrics.RecordEvent("failed")
		return err
	case out != nil && out.Degraded:
		metrics.RecordEvent("degraded")
	default:
		metrics.RecordEvent("processed")
	}
	return nil
}
