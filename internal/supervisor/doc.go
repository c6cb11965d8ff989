// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package supervisor provides process supervision using suture v4.

	RootSupervisor ("moodlog")
	├── DataSupervisor ("data-layer")
	│   ├── notification-expiry   (PeriodicService, Notifications.SweepInterval)
	│   ├── delivery-ledger-gc    (PeriodicService)
	│   └── duckdb-checkpoint     (PeriodicService)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── journal-event-consumer (if NATS_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crash in one layer restarts only that layer's services. Each supervisor
counts failures with exponential decay; past FailureThreshold it waits
FailureBackoff before restarting.

# Service Contract

Every service implements suture.Service:

	Serve(ctx context.Context) error

Returning an error restarts the service. Returning after ctx is canceled
ends it. Services must honor ctx; anything still running after
ShutdownTimeout is reported by UnstoppedServiceReport.

DuckDB and Badger are not supervised. They are embedded libraries whose
handles are owned by main and closed after the tree stops.
*/
package supervisor
