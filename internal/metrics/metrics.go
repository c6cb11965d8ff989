// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package metrics holds the Prometheus instruments for moodlog and small
// Record* helpers so callers never touch label ordering directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline

	PipelineEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_pipeline_entries_total",
			Help: "Journal entries processed by the deviation pipeline",
		},
		[]string{"outcome"}, // ok, empty_vector, storage_error, classifier_error
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moodlog_pipeline_duration_seconds",
			Help:    "End-to-end duration of one pipeline run",
			Buckets: prometheus.DefBuckets,
		},
	)

	SanitizedScoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_emotion_scores_sanitized_total",
			Help: "Emotion scores coerced or dropped at the classifier boundary",
		},
		[]string{"reason"}, // blank_name, non_finite, clamped
	)

	DeviationStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_deviation_status_total",
			Help: "Deviation evaluations by resulting status",
		},
		[]string{"status"},
	)

	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_alerts_emitted_total",
			Help: "Alerts produced by the classifier and delivered",
		},
		[]string{"type", "priority"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_alerts_suppressed_total",
			Help: "Alerts withheld from delivery",
		},
		[]string{"type", "reason"}, // reason: cooldown, warmup, audit
	)

	// Notifications

	NotificationsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_notifications_dispatched_total",
			Help: "Notifications persisted by the dispatcher",
		},
		[]string{"type", "mode"}, // mode: direct, broadcast
	)

	NotificationsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodlog_notifications_expired_total",
			Help: "Notifications removed by the retention sweeper",
		},
	)

	// Push channel

	PushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_push_events_total",
			Help: "Push events handed to live sessions",
		},
		[]string{"event", "outcome"}, // outcome: sent, duplicate, dropped, no_session
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodlog_websocket_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	WebSocketUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodlog_websocket_users_online",
			Help: "Users with at least one open WebSocket connection",
		},
	)

	DeliveryLedgerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_delivery_ledger_operations_total",
			Help: "Delivery ledger check-and-record operations",
		},
		[]string{"backend", "outcome"}, // outcome: recorded, duplicate, error
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodlog_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodlog_api_active_requests",
			Help: "HTTP API requests in flight",
		},
	)

	// Storage

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodlog_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_duckdb_query_errors_total",
			Help: "Failed DuckDB statements",
		},
		[]string{"operation", "table"},
	)

	// Classifier circuit breaker

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moodlog_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Event bus

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodlog_events_consumed_total",
			Help: "Journal events consumed from the event bus",
		},
		[]string{"outcome"}, // processed, parse_error, invalid, failed
	)
)

// RecordSanitized counts one coerced or dropped emotion score.
func RecordSanitized(reason string) {
	SanitizedScoresTotal.WithLabelValues(reason).Inc()
}

// RecordPipeline records one pipeline run.
func RecordPipeline(outcome string, duration time.Duration) {
	PipelineEntriesTotal.WithLabelValues(outcome).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// RecordDeviation counts one evaluation by status.
func RecordDeviation(status string) {
	DeviationStatusTotal.WithLabelValues(status).Inc()
}

// RecordAlert counts one delivered alert.
func RecordAlert(alertType, priority string) {
	AlertsEmittedTotal.WithLabelValues(alertType, priority).Inc()
}

// RecordAlertSuppressed counts one withheld alert.
func RecordAlertSuppressed(alertType, reason string) {
	AlertsSuppressedTotal.WithLabelValues(alertType, reason).Inc()
}

// RecordNotifications counts persisted notifications.
func RecordNotifications(notificationType, mode string, n int) {
	NotificationsDispatchedTotal.WithLabelValues(notificationType, mode).Add(float64(n))
}

// RecordPush counts one push attempt.
func RecordPush(event, outcome string) {
	PushesTotal.WithLabelValues(event, outcome).Inc()
}

// RecordLedger counts one delivery ledger operation.
func RecordLedger(backend, outcome string) {
	DeliveryLedgerOps.WithLabelValues(backend, outcome).Inc()
}

// RecordDBQuery records a DuckDB statement's latency and failure.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records one HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEvent counts one consumed event.
func RecordEvent(outcome string) {
	EventsConsumedTotal.WithLabelValues(outcome).Inc()
}
