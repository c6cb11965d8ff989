// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/moodlog/internal/logging"
	ws "github.com/tomtom215/moodlog/internal/websocket"
)

// SessionQueryParam carries the client's stable session key across
// reconnects, so replayed notifications are not delivered twice.
const SessionQueryParam = "session"

const maxSessionKeyLen = 128

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin requires an Origin header listed in the CORS origins.
// Browsers always send one; accepting an empty Origin would bypass CORS.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.mw == nil || h.mw.AllowsOrigin(origin) {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket handles GET /ws. The token may be passed as ?token= since
// browsers cannot set headers on the upgrade request.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		rw.ServiceUnavailable("WebSocket service unavailable")
		return
	}
	s, ok := subject(rw, r)
	if !ok {
		return
	}

	session := r.URL.Query().Get(SessionQueryParam)
	if len(session) > maxSessionKeyLen {
		rw.BadRequest("session key too long")
		return
	}

	h.touch(r.Context(), s)

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logFrom(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.deps.Hub, conn, ws.ClientInfo{
		UserID:     s.UserID,
		Role:       s.Role,
		SessionKey: session,
	})
	h.deps.Hub.Register(client)
	client.Start()
}

// sanitizeLogValue strips control characters and truncates untrusted input
// before it reaches the log.
func sanitizeLogValue(v string) string {
	const maxLen = 200
	v = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
	if len(v) > maxLen {
		v = v[:maxLen] + "..."
	}
	return v
}
