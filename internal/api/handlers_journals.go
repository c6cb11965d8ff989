// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/pipeline"
	"github.com/tomtom215/moodlog/internal/validation"
)

// analyzeResponse is the body of a successful POST /journals/analyze.
type analyzeResponse struct {
	Degraded      bool                         `json:"degraded"`
	Alerts        []alerting.Alert             `json:"alerts"`
	Report        *pipeline.Report             `json:"report,omitempty"`
	Notifications []*notification.Notification `json:"notifications"`
	Suppressed    []pipeline.Suppressed        `json:"suppressed,omitempty"`
}

// LatestDeviation handles GET /journals/deviation. A user with no analyzed
// entry gets data null rather than 404.
func (h *Handler) LatestDeviation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	report, err := h.deps.Journals.Latest(r.Context(), s.UserID)
	if errors.Is(err, pipeline.ErrNoReport) {
		rw.Success(nil)
		return
	}
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(report)
}

// Analyze handles POST /journals/analyze. A classifier outage is not an
// error: the entry is accepted and the response is marked degraded.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(rw, verr)
		return
	}

	h.touch(r.Context(), s)

	out, err := h.deps.Journals.Process(r.Context(), pipeline.Entry{
		UserID:   s.UserID,
		EntryID:  req.EntryID,
		Text:     req.Text,
		Emotions: req.Emotions,
	})
	if err != nil {
		respondServiceError(rw, err)
		return
	}

	resp := analyzeResponse{
		Degraded:      out.Degraded,
		Alerts:        []alerting.Alert{},
		Report:        out.Report,
		Notifications: out.Notifications,
		Suppressed:    out.Suppressed,
	}
	if out.Report != nil && len(out.Report.Alerts) > 0 {
		resp.Alerts = out.Report.Alerts
	}
	if resp.Notifications == nil {
		resp.Notifications = []*notification.Notification{}
	}
	if out.Degraded {
		logFrom(r.Context()).Warn().Str("entry_id", req.EntryID).Msg("Journal analyzed without classifier")
	}
	rw.Success(resp)
}
