// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package middleware provides the infrastructure HTTP middleware of the API.

Every middleware has the chi signature func(http.Handler) http.Handler and
wraps the response writer with chi's WrapResponseWriter, which keeps
http.Hijacker available for the WebSocket upgrade.

Key Components:

  - RequestID: X-Request-ID propagation into the logging context
  - PrometheusMetrics: request counter, latency histogram and in-flight gauge,
    labelled by chi route pattern
  - AccessLog: one structured log line per request, warning on slow requests
  - SecurityHeaders: conservative response headers for a JSON API

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(time.Second))
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.SecurityHeaders)
*/
package middleware
