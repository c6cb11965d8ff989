// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package audit records events that are kept for review but never shown to
// the user as notifications: baseline update records produced by the alert
// rules, admin broadcasts and preference changes.
//
// # Architecture
//
// Writes are buffered so the caller never waits on storage:
//
//	Logger.Log() -> Event Buffer (chan) -> Async Writer -> Store
//
// A full buffer drops the event with a warning. Close drains the buffer
// before returning.
//
// # Storage
//
// MemoryStore backs tests. The server uses the DuckDB store in the database
// package, whose audit_events table is created by the versioned migrations.
// Events older than the configured retention are purged by a periodic
// maintenance job calling Logger.Purge.
package audit
