// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

// Package config loads moodlog's layered configuration: built-in defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Database      DatabaseConfig      `koanf:"database"`
	Badger        BadgerConfig        `koanf:"badger"`
	Security      SecurityConfig      `koanf:"security"`
	Detection     DetectionConfig     `koanf:"detection"`
	Notifications NotificationsConfig `koanf:"notifications"`
	WebSocket     WebSocketConfig     `koanf:"websocket"`
	Classifier    ClassifierConfig    `koanf:"classifier"`
	NATS          NATSConfig          `koanf:"nats"`
	Engagement    EngagementConfig    `koanf:"engagement"`
	Audit         audit.Config        `koanf:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings. An empty Path keeps all state in
// process memory.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// BadgerConfig holds the delivery ledger store.
type BadgerConfig struct {
	// Backend is "badger" or "memory".
	Backend  string        `koanf:"backend"`
	Path     string        `koanf:"path"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
	// MemoryCapacity bounds the memory backend.
	MemoryCapacity int `koanf:"memory_capacity"`
}

// SecurityConfig holds authentication and HTTP hardening settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// DetectionConfig tunes the deviation pipeline.
type DetectionConfig struct {
	Thresholds deviation.Thresholds `koanf:"thresholds"`
	Rules      alerting.Config      `koanf:"rules"`
	Clusters   ClustersConfig       `koanf:"clusters"`
	Cooldowns  CooldownsConfig      `koanf:"cooldowns"`
}

// ClustersConfig is the emotion valence and group membership.
type ClustersConfig struct {
	Positive   []string `koanf:"positive"`
	Negative   []string `koanf:"negative"`
	Depression []string `koanf:"depression"`
	Anxiety    []string `koanf:"anxiety"`
	Stress     []string `koanf:"stress"`
}

// Build returns the lookup table.
func (c ClustersConfig) Build() *emotion.Clusters {
	return emotion.NewClusters(c.Positive, c.Negative, map[string][]string{
		emotion.GroupDepression: c.Depression,
		emotion.GroupAnxiety:    c.Anxiety,
		emotion.GroupStress:     c.Stress,
	})
}

// CooldownsConfig holds the per-type quiet periods.
type CooldownsConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Risk             time.Duration `koanf:"risk"`
	Spike            time.Duration `koanf:"spike"`
	Pattern          time.Duration `koanf:"pattern"`
	Deviation        time.Duration `koanf:"deviation"`
	Positive         time.Duration `koanf:"positive"`
	EscalationFactor float64       `koanf:"escalation_factor"`
	Capacity         int           `koanf:"capacity"`
}

// Periods returns the cooldowns keyed by alert type.
func (c CooldownsConfig) Periods() map[alerting.AlertType]time.Duration {
	return map[alerting.AlertType]time.Duration{
		alerting.TypeRisk:              c.Risk,
		alerting.TypeSpike:             c.Spike,
		alerting.TypePattern:           c.Pattern,
		alerting.TypeDeviation:         c.Deviation,
		alerting.TypePositiveMilestone: c.Positive,
	}
}

// NotificationsConfig holds retention and feed settings.
type NotificationsConfig struct {
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	CriticalLimit int           `koanf:"critical_limit"`
}

// EngagementConfig schedules the daily digest and re-engagement nudges.
type EngagementConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	// DigestHour is the UTC hour after which the daily digest goes out.
	DigestHour int `koanf:"digest_hour"`
	// InactivityThreshold is how long without an entry before a nudge.
	InactivityThreshold time.Duration `koanf:"inactivity_threshold"`
}

// WebSocketConfig holds push transport settings.
type WebSocketConfig struct {
	SendBuffer     int           `koanf:"send_buffer"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	PongWait       time.Duration `koanf:"pong_wait"`
	WriteWait      time.Duration `koanf:"write_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	// InboundRate is the per-connection limit on client messages per second.
	InboundRate  float64 `koanf:"inbound_rate"`
	InboundBurst int     `koanf:"inbound_burst"`
}

// ClassifierConfig selects and configures the emotion classifier.
type ClassifierConfig struct {
	// Provider is "http", "openai" or "none".
	Provider       string        `koanf:"provider"`
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
	OpenAIAPIKey   string        `koanf:"openai_api_key"`
	OpenAIModel    string        `koanf:"openai_model"`
}

// NATSConfig holds the journal event consumer settings.
type NATSConfig struct {
	Enabled              bool          `koanf:"enabled"`
	URL                  string        `koanf:"url"`
	Topic                string        `koanf:"topic"`
	DurableName          string        `koanf:"durable_name"`
	QueueGroup           string        `koanf:"queue_group"`
	SubscribersCount     int           `koanf:"subscribers_count"`
	AckWait              time.Duration `koanf:"ack_wait"`
	RetryCount           int           `koanf:"retry_count"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	PoisonQueueTopic     string        `koanf:"poison_queue_topic"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
