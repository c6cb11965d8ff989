// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/moodlog/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// Compile-time interface checks.
var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*PeriodicService)(nil)
)

type mockHTTPServer struct {
	listenErr error
	shutdown  atomic.Int32
	started   chan struct{}
	stop      chan struct{}
}

func newMockHTTPServer(listenErr error) *mockHTTPServer {
	return &mockHTTPServer{listenErr: listenErr, started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdown.Add(1)
	close(m.stop)
	return nil
}

func TestHTTPServerService(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		srv := newMockHTTPServer(nil)
		svc := NewHTTPServerService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		<-srv.started
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		if srv.shutdown.Load() != 1 {
			t.Errorf("Shutdown called %d times, want 1", srv.shutdown.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		srv := newMockHTTPServer(errors.New("address in use"))
		err := NewHTTPServerService(srv, 0).Serve(context.Background())
		if err == nil {
			t.Fatal("Serve() = nil, want error")
		}
	})

	t.Run("name", func(t *testing.T) {
		if got := NewHTTPServerService(newMockHTTPServer(nil), 0).String(); got != "http-server" {
			t.Errorf("String() = %q", got)
		}
	})
}

type mockHub struct{ ran atomic.Bool }

func (h *mockHub) RunWithContext(ctx context.Context) error {
	h.ran.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService(t *testing.T) {
	hub := &mockHub{}
	svc := NewWebSocketHubService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if !hub.ran.Load() {
		t.Error("hub was not run")
	}
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestPeriodicService(t *testing.T) {
	t.Run("runs on every tick and survives errors", func(t *testing.T) {
		var runs atomic.Int32
		ran := make(chan struct{}, 16)
		svc := NewPeriodicService("sweeper", 5*time.Millisecond, func(context.Context) error {
			n := runs.Add(1)
			ran <- struct{}{}
			if n == 1 {
				return errors.New("transient")
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		for i := 0; i < 3; i++ {
			select {
			case <-ran:
			case <-time.After(2 * time.Second):
				t.Fatalf("only %d runs", runs.Load())
			}
		}
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	})

	t.Run("run immediately", func(t *testing.T) {
		ran := make(chan struct{}, 1)
		svc := NewPeriodicService("once", time.Hour, func(context.Context) error {
			ran <- struct{}{}
			return nil
		}).RunImmediately()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = svc.Serve(ctx) }()

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run before the first tick")
		}
	})

	t.Run("default interval", func(t *testing.T) {
		svc := NewPeriodicService("x", 0, func(context.Context) error { return nil })
		if svc.Interval() != time.Minute {
			t.Errorf("Interval() = %v, want 1m", svc.Interval())
		}
		if svc.String() != "x" {
			t.Errorf("String() = %q", svc.String())
		}
	})
}
