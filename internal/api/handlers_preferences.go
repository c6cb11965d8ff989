// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"net/http"

	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/validation"
)

// GetPreferences handles GET /notifications/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}
	if h.deps.Preferences == nil {
		respondServiceError(rw, notification.ErrPreferencesUnavailable)
		return
	}

	p, err := h.deps.Preferences.Preferences(r.Context(), s.UserID)
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(p)
}

// UpdatePreferences handles PUT /notifications/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}
	if h.deps.Preferences == nil {
		respondServiceError(rw, notification.ErrPreferencesUnavailable)
		return
	}

	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(rw, verr)
		return
	}

	p, err := h.deps.Preferences.UpdatePreferences(r.Context(), s.UserID, req.update())
	if err != nil {
		respondServiceError(rw, err)
		return
	}

	h.deps.Audit.LogPreferencesChanged(r.Context(), audit.UserActor(s.UserID, []string{s.Role}), audit.SourceFromRequest(r), req)
	logFrom(r.Context()).Info().
		Str("user_id", s.UserID).
		Bool("enabled", p.Enabled).
		Msg("Notification preferences updated")
	rw.Success(p)
}
