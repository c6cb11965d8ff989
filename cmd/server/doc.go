// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Command server runs the moodlog service: journal analysis against each
user's emotional baseline, alert delivery and the notification API.

Startup order:

 1. Configuration (koanf: defaults, config.yaml, environment)
 2. Logging (zerolog)
 3. DuckDB (baselines, deviation reports, notifications, user roles)
 4. Delivery ledger (BadgerDB or in-memory LRU)
 5. WebSocket hub, notification tracker and dispatcher
 6. Classifier, baseline aggregator, deviation engine and alert rules
 7. JWT authentication and Casbin authorization
 8. Chi router
 9. Supervisor tree

Supervisor tree:

	moodlog
	├── data-layer
	│   ├── notification-expiry
	│   ├── delivery-ledger-gc
	│   └── duckdb-checkpoint
	├── messaging-layer
	│   ├── websocket-hub
	│   └── journal-event-consumer (NATS_ENABLED=true)
	└── api-layer
	    └── http-server

SIGINT or SIGTERM cancels the root context. Each service gets
SHUTDOWN_TIMEOUT to stop, then DuckDB is checkpointed and closed.
*/
package main
