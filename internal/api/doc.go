// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package api provides the HTTP surface of the service using the Chi router.

All routes live under /api/v1. Health checks are public; everything else
requires a JWT (see package auth) and a casbin permission (see package authz).

# Endpoints

	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	GET    /api/v1/notifications                 list (read, type, severity, include_dismissed, limit, offset, page)
	DELETE /api/v1/notifications                 clear all
	GET    /api/v1/notifications/count/unread
	GET    /api/v1/notifications/critical/all
	POST   /api/v1/notifications/read/batch      {"ids": [...]}
	GET    /api/v1/notifications/{id}
	PATCH  /api/v1/notifications/{id}/read
	PATCH  /api/v1/notifications/{id}/dismiss
	DELETE /api/v1/notifications/{id}
	POST   /api/v1/notifications/broadcast/send  admin only
	GET    /api/v1/journals/deviation
	POST   /api/v1/journals/analyze
	GET    /api/v1/ws                            WebSocket upgrade
	GET    /metrics

# Response Envelope

Every JSON response is an APIResponse:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "...", "request_id": "..."}}

Storage failures are reported as 503 DATABASE_ERROR with a generic retry
message; the underlying error is only logged.
*/
package api
