// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/api"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/auth"
	"github.com/tomtom215/moodlog/internal/authz"
	"github.com/tomtom215/moodlog/internal/baseline"
	"github.com/tomtom215/moodlog/internal/classifier"
	"github.com/tomtom215/moodlog/internal/config"
	"github.com/tomtom215/moodlog/internal/database"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/engagement"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
	"github.com/tomtom215/moodlog/internal/pipeline"
	"github.com/tomtom215/moodlog/internal/supervisor"
	"github.com/tomtom215/moodlog/internal/supervisor/services"
	ws "github.com/tomtom215/moodlog/internal/websocket"
)

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("classifier", cfg.Classifier.Provider).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ledger, err := openLedger(&cfg.Badger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open delivery ledger")
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing delivery ledger")
		}
	}()

	auditLogger := audit.NewLogger(db.Audit(), cfg.Audit)
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	notificationStore := db.Notifications()
	directory := db.Directory()

	hubOpts := hubOptions(&cfg.WebSocket)
	// The tracker needs the hub as its pusher and the hub needs the tracker
	// for its backlog, so the backlog is bound after both exist.
	var tracker *notification.Tracker
	hubOpts.Backlog = func(ctx context.Context, userID string) ([]ws.Message, error) {
		return unreadBacklog(ctx, tracker, userID)
	}
	hub := ws.NewHub(ledger, hubOpts)
	tracker = notification.NewTracker(notificationStore, hub, cfg.Notifications.CriticalLimit)
	preferences := db.Preferences()
	dispatcher := notification.NewDispatcher(notificationStore, hub, directory, cfg.Notifications.Retention).
		WithPreferences(preferences, notification.DefaultTypes(cfg.Detection.Rules.DeliverAudit))

	clusters := cfg.Detection.Clusters.Build()
	textClassifier, err := classifier.New(cfg.Classifier, classifierLabels(cfg.Detection.Clusters))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize classifier")
	}

	var cooldowns *alerting.Cooldowns
	if cfg.Detection.Cooldowns.Enabled {
		cooldowns = alerting.NewCooldowns(
			cfg.Detection.Cooldowns.Periods(),
			cfg.Detection.Cooldowns.EscalationFactor,
			cfg.Detection.Cooldowns.Capacity,
		)
	} else {
		logging.Warn().Msg("Alert cooldowns are DISABLED; every alert will be delivered")
	}

	analyzer := pipeline.New(pipeline.Deps{
		Classifier: textClassifier,
		Aggregator: baseline.NewAggregator(db.Baselines(), clusters),
		Engine:     deviation.NewEngine(cfg.Detection.Thresholds),
		Rules:      alerting.NewClassifier(cfg.Detection.Rules, clusters),
		Cooldowns:  cooldowns,
		Dispatcher: dispatcher,
		Reports:    db.Reports(),
		Audit:      auditLogger,
	})

	scheduler := engagement.NewScheduler(db.Baselines(), dispatcher, preferences, ledger, clusters, engagement.Config{
		DigestHour:          cfg.Engagement.DigestHour,
		InactivityThreshold: cfg.Engagement.InactivityThreshold,
	})

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); WebSocket origin checks are effectively off")
			break
		}
	}

	chiMw := api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security))
	handler := api.NewHandler(api.Deps{
		Notifications: tracker,
		Broadcaster:   dispatcher,
		Journals:      analyzer,
		Preferences:   dispatcher,
		Database:      db,
		Hub:           hub,
		Directory:     directory,
		Audit:         auditLogger,
	}, chiMw)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), authz.NewMiddleware(enforcer), chiMw)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: cfg.Server.Timeout,
		// WebSocket connections manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	for _, svc := range maintenanceServices(cfg, tracker, ledger, db) {
		tree.AddDataService(svc)
	}
	for _, svc := range backgroundJobs(cfg, scheduler, auditLogger) {
		tree.AddDataService(svc)
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if cfg.NATS.Enabled {
		consumer, poison, err := newJournalConsumer(&cfg.NATS, analyzer)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize journal event consumer")
		}
		defer func() {
			if err := poison.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing poison queue publisher")
			}
		}()
		tree.AddMessagingService(consumer)
		logging.Info().
			Str("url", cfg.NATS.URL).
			Str("topic", cfg.NATS.Topic).
			Msg("Journal event consumer added to supervisor tree")
	} else {
		logging.Info().Msg("Journal event consumer disabled (NATS_ENABLED=false)")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err := db.Checkpoint(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}
