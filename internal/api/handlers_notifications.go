// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/validation"
)

func logFrom(ctx context.Context) *zerolog.Logger {
	return logging.Ctx(ctx)
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	f, err := parseFilter(r.URL.Query())
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	page, err := h.deps.Notifications.Fetch(r.Context(), s.UserID, f)
	if err != nil {
		respondServiceError(rw, err)
		return
	}

	rw.SuccessWithPagination(page, &PaginationMeta{
		Total:   page.Total,
		Count:   len(page.Items),
		Offset:  f.Offset,
		Limit:   f.Limit,
		HasMore: f.Offset+len(page.Items) < page.Total,
	})
}

// UnreadCount handles GET /notifications/count/unread.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	n, err := h.deps.Notifications.UnreadCount(r.Context(), s.UserID)
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(map[string]int{"unreadCount": n})
}

// CriticalNotifications handles GET /notifications/critical/all.
func (h *Handler) CriticalNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	items, err := h.deps.Notifications.Critical(r.Context(), s.UserID)
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	rw.Success(items)
}

// GetNotification handles GET /notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	n, err := h.deps.Notifications.Get(r.Context(), s.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(n)
}

// MarkRead handles PATCH /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	ev, err := h.deps.Notifications.MarkRead(r.Context(), s.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(ev)
}

// MarkManyRead handles POST /notifications/read/batch.
func (h *Handler) MarkManyRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	var req markBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(rw, verr)
		return
	}

	ev, err := h.deps.Notifications.MarkManyRead(r.Context(), s.UserID, req.IDs)
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(ev)
}

// Dismiss handles PATCH /notifications/{id}/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	n, err := h.deps.Notifications.Dismiss(r.Context(), s.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(n)
}

// DeleteNotification handles DELETE /notifications/{id}.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.deps.Notifications.Delete(r.Context(), s.UserID, id); err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(map[string]string{"id": id})
}

// ClearAll handles DELETE /notifications.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	n, err := h.deps.Notifications.ClearAll(r.Context(), s.UserID)
	if err != nil {
		respondServiceError(rw, err)
		return
	}
	rw.Success(map[string]int{"deleted": n})
}

// Broadcast handles POST /notifications/broadcast/send. Admin only; the
// router enforces the role.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	var req notification.BroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(rw, verr)
		return
	}

	n, err := h.deps.Broadcaster.Broadcast(r.Context(), req)
	if err != nil {
		respondServiceError(rw, err)
		return
	}

	h.deps.Audit.LogBroadcast(r.Context(), audit.UserActor(s.UserID, []string{s.Role}), audit.SourceFromRequest(r), audit.BroadcastDetails{
		Role:       req.Role,
		Title:      req.Title,
		Severity:   req.Severity.String(),
		Recipients: n,
	})
	logFrom(r.Context()).Info().
		Str("admin_id", s.UserID).
		Str("role", req.Role).
		Int("recipients", n).
		Msg("Broadcast sent")
	rw.Success(map[string]int{"recipients": n})
}
