// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package auth is the authentication boundary of the moodlog API.

Journaling clients present an HS256 JWT issued by the account service that
owns user identities. The token carries the user id in the standard "sub"
claim and a single role ("user" or "admin"). Moodlog only validates tokens;
it never stores credentials.

Key Components:

  - JWTManager: token generation (used by tests and tooling) and validation
  - Subject: the authenticated (user id, role) pair attached to a request
  - Middleware: chi-compatible middleware that rejects unauthenticated requests

Token Sources:

The middleware reads the token from the Authorization header first:

	Authorization: Bearer <token>

Browsers cannot set headers on a WebSocket upgrade, so the "token" query
parameter is accepted as a fallback:

	GET /api/v1/ws?token=<token>&session=<key>

Usage Example:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	mw := auth.NewMiddleware(jwtManager)
	r.Group(func(r chi.Router) {
	    r.Use(mw.Authenticate)
	    r.Get("/notifications", h.ListNotifications)
	})

	// inside a handler
	subject, ok := auth.SubjectFromContext(r.Context())

Role enforcement lives in package authz.
*/
package auth
