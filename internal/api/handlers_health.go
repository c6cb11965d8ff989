// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthLive handles GET /health/live. It only reports that the process
// is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /health/ready: 200 when storage answers, 503
// otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dbConnected := false
	if h.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := h.deps.Database.Ping(ctx)
		cancel()
		if err != nil {
			logFrom(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		}
		dbConnected = err == nil
	}

	wsClients := 0
	if h.deps.Hub != nil {
		wsClients = h.deps.Hub.ClientCount()
	}

	if !dbConnected {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", map[string]interface{}{
			"database_connected": false,
		})
		return
	}

	rw.Success(map[string]interface{}{
		"status":             "ready",
		"database_connected": true,
		"websocket_clients":  wsClients,
		"uptime":             time.Since(h.startTime).Seconds(),
	})
}
