// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package websocket pushes notification events to every live session of a user.

Key Components:

  - Hub: per-user session registry; implements notification.Pusher
  - Client: one WebSocket connection with read and write goroutines
  - DeliveryLedger: remembers which (session, notification) pairs were sent

Each user may hold several connections (tabs, devices). A connection carries
a session key chosen by the client (?session=). The ledger is keyed on that
session key, so a tab that reconnects with the same key is never sent a
notification it already received, including during backlog replay on
connect.

Sends never block the caller. A client whose send buffer is full loses the
message and is disconnected; it will reconcile by fetching over REST.

Presence:

The first connection of a user broadcasts user:online to role admin and the
last disconnection broadcasts user:offline.

Message envelope:

	{"type": "notification:new", "data": {...}}
*/
package websocket
