// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/moodlog/internal/config"
	"github.com/tomtom215/moodlog/internal/logging"
)

// ErrInvalidConfig is returned when the consumer configuration is unusable.
var ErrInvalidConfig = errors.New("invalid consumer configuration")

// ConsumerConfig tunes the router around the journal handler.
type ConsumerConfig struct {
	Topic                string
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	// PoisonQueueTopic receives messages that still fail after every retry.
	// Empty disables the poison queue.
	PoisonQueueTopic string
}

// DefaultConsumerConfig returns production defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topic:                "journal.analyzed",
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     "journal.analyzed.poison",
	}
}

// ConsumerConfigFrom maps the NATS section of the application config.
func ConsumerConfigFrom(cfg *config.NATSConfig) ConsumerConfig {
	c := DefaultConsumerConfig()
	c.Topic = cfg.Topic
	c.CloseTimeout = cfg.CloseTimeout
	c.RetryMaxRetries = cfg.RetryCount
	c.RetryInitialInterval = cfg.RetryInitialInterval
	c.PoisonQueueTopic = cfg.PoisonQueueTopic
	return c
}

// Validate checks the configuration.
func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("%w: retry count must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SubscriberFactory opens a subscriber. It is called once per Serve so a
// restarted consumer reconnects.
type SubscriberFactory func() (message.Subscriber, error)

// Consumer runs the journal handler under a watermill router. It is a
// suture service.
type Consumer struct {
	cfg           ConsumerConfig
	newSubscriber SubscriberFactory
	poison        message.Publisher
	handler       *JournalHandler
	logger        watermill.LoggerAdapter
	running       chan struct{}
}

// NewConsumer creates a consumer. poison may be nil.
func NewConsumer(cfg ConsumerConfig, newSubscriber SubscriberFactory, poison message.Publisher, p Processor) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if newSubscriber == nil || p == nil {
		return nil, fmt.Errorf("%w: subscriber factory and processor are required", ErrInvalidConfig)
	}
	return &Consumer{
		cfg:           cfg,
		newSubscriber: newSubscriber,
		poison:        poison,
		handler:       NewJournalHandler(p),
		logger:        logging.NewWatermillAdapter(),
		running:       make(chan struct{}),
	}, nil
}

// Running is closed once the first router is consuming.
func (c *Consumer) Running() <-chan struct{} {
	return c.running
}

func (c *Consumer) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.CloseTimeout}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Outermost first: poisoning happens only after the retries are spent.
	if c.poison != nil && c.cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(c.poison, c.cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poisonQueue)
	}
	retry := middleware.Retry{
		MaxRetries:      c.cfg.RetryMaxRetries,
		InitialInterval: c.cfg.RetryInitialInterval,
		MaxInterval:     c.cfg.RetryMaxInterval,
		Multiplier:      c.cfg.RetryMultiplier,
		Logger:          c.logger,
	}
	router.AddMiddleware(retry.Middleware, middleware.Recoverer)
	return router, nil
}

// Serve consumes until ctx is canceled.
func (c *Consumer) Serve(ctx context.Context) error {
	sub, err := c.newSubscriber()
	if err != nil {
		return fmt.Errorf("open subscriber: %w", err)
	}

	router, err := c.newRouter()
	if err != nil {
		_ = sub.Close()
		return err
	}
	router.AddConsumerHandler("journal-deviation", c.cfg.Topic, sub, c.handler.Handle)

	go func() {
		select {
		case <-router.Running():
			c.markRunning()
			logging.Info().Str("topic", c.cfg.Topic).Msg("Journal event consumer running")
		case <-ctx.Done():
		}
	}()

	runErr := router.Run(ctx)
	if err := sub.Close(); err != nil {
		logging.Debug().Err(err).Msg("Closing journal event subscriber")
	}
	if runErr != nil {
		return fmt.Errorf("journal event router: %w", runErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (c *Consumer) markRunning() {
	select {
	case <-c.running:
	default:
		close(c.running)
	}
}

// String implements fmt.Stringer for suture logs.
func (c *Consumer) String() string {
	return "journal-event-consumer"
}
