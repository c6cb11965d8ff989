// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/auth"
	"github.com/tomtom215/moodlog/internal/logging"
)

// Middleware provides authorization middleware using Casbin.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize returns chi middleware that requires the request's subject to
// hold a role allowed to perform action on object. It must run after
// auth.Middleware.Authenticate.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := auth.SubjectFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusForbidden, "FORBIDDEN", "no authentication context")
				return
			}

			allowed, err := m.enforcer.Enforce(subject.Role, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
				writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization failed")
				return
			}
			if !allowed {
				logging.Ctx(r.Context()).Debug().
					Str("role", subject.Role).
					Str("object", object).
					Str("action", action).
					Msg("Access denied")
				writeError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthorizeRequest is Authorize with the action taken from the HTTP method.
func (m *Middleware) AuthorizeRequest(object string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.Authorize(object, methodToAction(r.Method))(next).ServeHTTP(w, r)
		})
	}
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return ActionWrite
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	type apiError struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool     `json:"success"`
		Error   apiError `json:"error"`
	}{
		Error: apiError{Code: code, Message: message, RequestID: logging.RequestIDFromContext(r.Context())},
	})
}
