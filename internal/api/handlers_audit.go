// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"net/http"
)

// ListAuditEvents handles GET /audit. Newest events come first.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Audit == nil {
		rw.ServiceUnavailable("audit logging is disabled")
		return
	}

	f, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	events, err := h.deps.Audit.Query(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	total, err := h.deps.Audit.Count(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(events, &PaginationMeta{
		Total:   int(total),
		Count:   len(events),
		Offset:  f.Offset,
		Limit:   f.Limit,
		HasMore: f.Offset+len(events) < int(total),
	})
}
