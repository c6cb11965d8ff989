// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/pipeline"
	"github.com/tomtom215/moodlog/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// respondServiceError maps a domain error onto the envelope. Anything
// unrecognized is a storage failure.
func respondServiceError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		rw.NotFound("notification not found")
	case errors.Is(err, notification.ErrInvalidInput), errors.Is(err, pipeline.ErrInvalidEntry):
		rw.BadRequest(err.Error())
	case errors.Is(err, notification.ErrPreferencesUnavailable):
		rw.ServiceUnavailable(err.Error())
	default:
		rw.DatabaseError(err)
	}
}

// respondValidation writes a VALIDATION_ERROR for verr.
func respondValidation(rw *ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
}
