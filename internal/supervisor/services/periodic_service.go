// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package services

import (
	"context"
	"time"

	"github.com/tomtom215/moodlog/internal/logging"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// PeriodicService runs a task on a fixed interval. A failed run is logged
// and retried on the next tick; it does not restart the service, so a
// flapping database cannot push the data layer into backoff.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     Task
	runFirst bool
	now      func() time.Time
}

// NewPeriodicService creates a service that runs task every interval,
// starting one interval after Serve. A non-positive interval means 1m.
func NewPeriodicService(name string, interval time.Duration, task Task) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task, now: time.Now}
}

// RunImmediately makes Serve run the task once before the first tick.
func (p *PeriodicService) RunImmediately() *PeriodicService {
	p.runFirst = true
	return p
}

// Interval returns the tick interval.
func (p *PeriodicService) Interval() time.Duration {
	return p.interval
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.runFirst {
		p.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *PeriodicService) run(ctx context.Context) {
	start := p.now()
	ctx = logging.ContextWithNewCorrelationID(ctx)
	if err := p.task(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Str("service", p.name).Msg("Periodic task failed")
		return
	}
	logging.Ctx(ctx).Debug().
		Str("service", p.name).
		Dur("duration", p.now().Sub(start)).
		Msg("Periodic task completed")
}

// String implements fmt.Stringer for suture's logs.
func (p *PeriodicService) String() string {
	return p.name
}
