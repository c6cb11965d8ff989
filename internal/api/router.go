// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/moodlog/internal/auth"
	"github.com/tomtom215/moodlog/internal/authz"
	"github.com/tomtom215/moodlog/internal/middleware"
)

// slowRequestThreshold is where AccessLog switches from debug to warn.
const slowRequestThreshold = time.Second

// Router holds the HTTP dependencies.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, authMw *auth.Middleware, authzMw *authz.Middleware, chiMw *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		auth:          authMw,
		authz:         authzMw,
		chiMiddleware: chiMw,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog(slowRequestThreshold))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// ========================
	// Health and Metrics
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	// ========================
	// Authenticated API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(router.auth.Authenticate)

		r.Route("/notifications", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(router.authz.AuthorizeRequest(authz.ObjectNotifications))

				r.Get("/", router.handler.ListNotifications)
				r.Delete("/", router.handler.ClearAll)
				r.Get("/count/unread", router.handler.UnreadCount)
				r.Get("/critical/all", router.handler.CriticalNotifications)
				r.Post("/read/batch", router.handler.MarkManyRead)
				r.Get("/preferences", router.handler.GetPreferences)
				r.Put("/preferences", router.handler.UpdatePreferences)
				r.Get("/{id}", router.handler.GetNotification)
				r.Patch("/{id}/read", router.handler.MarkRead)
				r.Patch("/{id}/dismiss", router.handler.Dismiss)
				r.Delete("/{id}", router.handler.DeleteNotification)
			})

			// Broadcast is checked against its own object only.
			r.With(
				router.chiMiddleware.RateLimitCustom(RateLimitBroadcast),
				router.authz.Authorize(authz.ObjectBroadcast, authz.ActionWrite),
			).Post("/broadcast/send", router.handler.Broadcast)
		})

		r.Route("/journals", func(r chi.Router) {
			r.With(router.authz.Authorize(authz.ObjectJournals, authz.ActionRead)).
				Get("/deviation", router.handler.LatestDeviation)
			r.With(
				router.chiMiddleware.RateLimitCustom(RateLimitAnalyze),
				router.authz.Authorize(authz.ObjectJournals, authz.ActionWrite),
			).Post("/analyze", router.handler.Analyze)
		})

		r.With(router.authz.Authorize(authz.ObjectAudit, authz.ActionRead)).
			Get("/audit", router.handler.ListAuditEvents)

		r.With(
			router.chiMiddleware.RateLimitCustom(RateLimitWebSocket),
			router.authz.Authorize(authz.ObjectPush, authz.ActionRead),
		).Get("/ws", router.handler.WebSocket)
	})

	return r
}
