// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/moodlog/internal/config"
	"github.com/tomtom215/moodlog/internal/eventprocessor"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/supervisor/services"
	ws "github.com/tomtom215/moodlog/internal/websocket"
)

// checkpointInterval is how often the DuckDB WAL is folded into the main file.
const checkpointInterval = 5 * time.Minute

// openLedger opens the delivery ledger selected by cfg.Backend.
func openLedger(cfg *config.BadgerConfig) (ws.DeliveryLedger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		logging.Info().Int("capacity", cfg.MemoryCapacity).Msg("Using in-memory delivery ledger")
		return ws.NewMemoryLedger(cfg.MemoryCapacity, cfg.TTL), nil
	case "", "badger":
		ledger, err := ws.OpenBadgerLedger(cfg.Path, cfg.InMemory, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open badger ledger at %q: %w", cfg.Path, err)
		}
		logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Using BadgerDB delivery ledger")
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown delivery ledger backend %q", cfg.Backend)
	}
}

func hubOptions(cfg *config.WebSocketConfig) ws.Options {
	return ws.Options{
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
		InboundRate:    cfg.InboundRate,
		InboundBurst:   cfg.InboundBurst,
	}
}

// classifierLabels lists every emotion the classifier may score, positive
// cluster first, without duplicates.
func classifierLabels(c config.ClustersConfig) []string {
	seen := make(map[string]struct{}, len(c.Positive)+len(c.Negative))
	labels := make([]string, 0, len(c.Positive)+len(c.Negative))
	for _, group := range [][]string{c.Positive, c.Negative} {
		for _, label := range group {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			labels = append(labels, label)
		}
	}
	return labels
}

// backlogSource is the part of the tracker a reconnecting client replays from.
type backlogSource interface {
	Fetch(ctx context.Context, userID string, f notification.Filter) (*notification.Page, error)
}

// unreadBacklog returns the user's unread, undismissed notifications as
// push messages. The hub's ledger drops the ones the session already has.
func unreadBacklog(ctx context.Context, src backlogSource, userID string) ([]ws.Message, error) {
	unread := false
	page, err := src.Fetch(ctx, userID, notification.Filter{Read: &unread, Limit: notification.MaxPageSize})
	if err != nil {
		return nil, fmt.Errorf("fetch unread backlog: %w", err)
	}
	msgs := make([]ws.Message, 0, len(page.Items))
	// Oldest first so the client sees them in arrival order.
	for i := len(page.Items) - 1; i >= 0; i-- {
		n := page.Items[i]
		msgs = append(msgs, ws.Message{Type: notification.EventNew, Data: &n})
	}
	return msgs, nil
}

type expirer interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// maintenanceServices builds the data-layer periodic jobs.
func maintenanceServices(cfg *config.Config, notifications expirer, ledger ws.DeliveryLedger, db checkpointer) []suture.Service {
	svcs := []suture.Service{
		services.NewPeriodicService("notification-expiry", cfg.Notifications.SweepInterval, func(ctx context.Context) error {
			_, err := notifications.PurgeExpired(ctx, time.Now())
			return err
		}),
	}

	if compactor, ok := ledger.(ws.Compactor); ok {
		svcs = append(svcs, services.NewPeriodicService("delivery-ledger-gc", cfg.Notifications.SweepInterval, compactor.Compact))
	}

	svcs = append(svcs, services.NewPeriodicService("duckdb-checkpoint", checkpointInterval, db.Checkpoint))
	return svcs
}

type engagementJobs interface {
	SendDigests(ctx context.Context) (int, error)
	SendReEngagement(ctx context.Context) (int, error)
}

type auditPurger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// backgroundJobs builds the user-facing periodic jobs and audit retention.
func backgroundJobs(cfg *config.Config, jobs engagementJobs, purger auditPurger) []suture.Service {
	var svcs []suture.Service
	if cfg.Engagement.Enabled {
		svcs = append(svcs,
			services.NewPeriodicService("daily-digest", cfg.Engagement.Interval, func(ctx context.Context) error {
				_, err := jobs.SendDigests(ctx)
				return err
			}),
			services.NewPeriodicService("re-engagement", cfg.Engagement.Interval, func(ctx context.Context) error {
				_, err := jobs.SendReEngagement(ctx)
				return err
			}),
		)
	} else {
		logging.Info().Msg("Daily digest and re-engagement jobs are disabled")
	}

	if cfg.Audit.Enabled {
		svcs = append(svcs, services.NewPeriodicService("audit-retention", cfg.Audit.CleanupInterval, func(ctx context.Context) error {
			_, err := purger.Purge(ctx, time.Now())
			return err
		}))
	}
	return svcs
}

// newJournalConsumer wires the NATS subscriber and poison queue publisher.
// The caller closes the returned publisher after the consumer stops.
func newJournalConsumer(cfg *config.NATSConfig, p eventprocessor.Processor) (*eventprocessor.Consumer, message.Publisher, error) {
	logger := logging.NewWatermillAdapter()
	poison, err := eventprocessor.NewNATSPublisher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	consumer, err := eventprocessor.NewConsumer(
		eventprocessor.ConsumerConfigFrom(cfg),
		eventprocessor.NATSSubscriberFactory(cfg, logger),
		poison,
		p,
	)
	if err != nil {
		_ = poison.Close()
		return nil, nil, err
	}
	return consumer, poison, nil
}
