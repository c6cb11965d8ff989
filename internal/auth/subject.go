// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package auth

import (
	"context"
	"time"
)

// Roles known to the service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type contextKey string

const subjectContextKey contextKey = "auth-subject"

// Subject is the authenticated principal of a request.
type Subject struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// SubjectFromClaims converts validated claims. An empty role means RoleUser.
func SubjectFromClaims(claims *Claims) *Subject {
	if claims == nil {
		return nil
	}
	s := &Subject{UserID: claims.Subject, Role: claims.Role}
	if s.Role == "" {
		s.Role = RoleUser
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

// IsAdmin reports whether the subject holds the admin role.
func (s *Subject) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// ContextWithSubject returns a context carrying s.
func ContextWithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, s)
}

// SubjectFromContext returns the subject set by the middleware.
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	s, ok := ctx.Value(subjectContextKey).(*Subject)
	return s, ok && s != nil
}
