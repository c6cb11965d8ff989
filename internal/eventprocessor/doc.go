// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

/*
Package eventprocessor consumes journal.analyzed events from the event bus
and feeds them to the deviation pipeline.

Architecture:

	NATS JetStream (journal.analyzed)
	        |
	watermill Router: PoisonQueue -> Retry -> Recoverer
	        |
	JournalHandler -> pipeline.Process

Message outcomes:

  - malformed payload or invalid entry: acked and counted, never retried
  - storage failure: retried with backoff, then routed to the poison topic
  - classifier unavailable: acked; the pipeline reports the run as degraded

The subscriber is built by a factory so a supervised restart gets a fresh
connection. Tests use watermill's gochannel pub/sub in place of NATS.
*/
package eventprocessor
