// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/moodlog/config.yaml",
	"/etc/moodlog/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. Defaults are
// loaded first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	cooldowns := alerting.DefaultCooldowns()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "/data/moodlog.duckdb",
			MaxMemory: "1GB",
		},
		Badger: BadgerConfig{
			Backend:        "badger",
			Path:           "/data/ledger",
			TTL:            30 * 24 * time.Hour,
			MemoryCapacity: 100000,
		},
		Security: SecurityConfig{
			TokenTTL:        24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Detection: DetectionConfig{
			Thresholds: deviation.DefaultThresholds(),
			Rules:      alerting.DefaultConfig(),
			Clusters: ClustersConfig{
				Positive:   emotion.DefaultPositive,
				Negative:   emotion.DefaultNegative,
				Depression: emotion.DefaultGroups[emotion.GroupDepression],
				Anxiety:    emotion.DefaultGroups[emotion.GroupAnxiety],
				Stress:     emotion.DefaultGroups[emotion.GroupStress],
			},
			Cooldowns: CooldownsConfig{
				Enabled:          true,
				Risk:             cooldowns[alerting.TypeRisk],
				Spike:            cooldowns[alerting.TypeSpike],
				Pattern:          cooldowns[alerting.TypePattern],
				Deviation:        cooldowns[alerting.TypeDeviation],
				Positive:         cooldowns[alerting.TypePositiveMilestone],
				EscalationFactor: alerting.DefaultEscalationFactor,
				Capacity:         50000,
			},
		},
		Notifications: NotificationsConfig{
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
			CriticalLimit: 5,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:     256,
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 4096,
			InboundRate:    10,
			InboundBurst:   20,
		},
		Classifier: ClassifierConfig{
			Provider:       "http",
			URL:            "http://localhost:8000",
			Timeout:        10 * time.Second,
			BreakerEnabled: true,
			OpenAIModel:    "gpt-4o-mini",
		},
		NATS: NATSConfig{
			Enabled:              false,
			URL:                  "nats://127.0.0.1:4222",
			Topic:                "journal.analyzed",
			DurableName:          "moodlog-deviation",
			QueueGroup:           "moodlog",
			SubscribersCount:     4,
			AckWait:              30 * time.Second,
			RetryCount:           3,
			RetryInitialInterval: 100 * time.Millisecond,
			PoisonQueueTopic:     "journal.analyzed.poison",
			CloseTimeout:         30 * time.Second,
		},
		Engagement: EngagementConfig{
			Enabled:             true,
			Interval:            6 * time.Hour,
			DigestHour:          20,
			InactivityThreshold: 72 * time.Hour,
		},
		Audit: audit.DefaultConfig(),
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence, and validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"detection.clusters.positive",
	"detection.clusters.negative",
	"detection.clusters.depression",
	"detection.clusters.anxiety",
	"detection.clusters.stress",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot pollute
// configuration.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"server_timeout":   "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"ledger_backend":         "badger.backend",
	"ledger_path":            "badger.path",
	"ledger_in_memory":       "badger.in_memory",
	"ledger_ttl":             "badger.ttl",
	"ledger_memory_capacity": "badger.memory_capacity",

	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	"deviation_significant_threshold": "detection.thresholds.significant",
	"deviation_moderate_threshold":    "detection.thresholds.moderate",
	"spike_threshold":                 "detection.rules.spike_threshold",
	"baseline_min_samples":            "detection.rules.min_samples",
	"persistent_negative_window":      "detection.rules.persistent_window",
	"deliver_baseline_updates":        "detection.rules.deliver_audit",
	"emotions_positive":               "detection.clusters.positive",
	"emotions_negative":               "detection.clusters.negative",
	"emotions_depression":             "detection.clusters.depression",
	"emotions_anxiety":                "detection.clusters.anxiety",
	"emotions_stress":                 "detection.clusters.stress",
	"cooldown_enabled":                "detection.cooldowns.enabled",
	"cooldown_risk":                   "detection.cooldowns.risk",
	"cooldown_spike":                  "detection.cooldowns.spike",
	"cooldown_pattern":                "detection.cooldowns.pattern",
	"cooldown_deviation":              "detection.cooldowns.deviation",
	"cooldown_positive":               "detection.cooldowns.positive",
	"cooldown_escalation_factor":      "detection.cooldowns.escalation_factor",

	"notification_retention":      "notifications.retention",
	"notification_sweep_interval": "notifications.sweep_interval",
	"notification_critical_limit": "notifications.critical_limit",

	"ws_send_buffer":      "websocket.send_buffer",
	"ws_ping_interval":    "websocket.ping_interval",
	"ws_pong_wait":        "websocket.pong_wait",
	"ws_write_wait":       "websocket.write_wait",
	"ws_max_message_size": "websocket.max_message_size",
	"ws_inbound_rate":     "websocket.inbound_rate",
	"ws_inbound_burst":    "websocket.inbound_burst",

	"classifier_provider":        "classifier.provider",
	"classifier_url":             "classifier.url",
	"classifier_timeout":         "classifier.timeout",
	"classifier_breaker_enabled": "classifier.breaker_enabled",
	"openai_api_key":             "classifier.openai_api_key",
	"openai_model":               "classifier.openai_model",

	"nats_enabled":                "nats.enabled",
	"nats_url":                    "nats.url",
	"nats_topic":                  "nats.topic",
	"nats_durable_name":           "nats.durable_name",
	"nats_queue_group":            "nats.queue_group",
	"nats_subscribers":            "nats.subscribers_count",
	"nats_ack_wait":               "nats.ack_wait",
	"nats_retry_count":            "nats.retry_count",
	"nats_retry_initial_interval": "nats.retry_initial_interval",
	"nats_poison_queue_topic":     "nats.poison_queue_topic",
	"nats_close_timeout":          "nats.close_timeout",

	"engagement_enabled":      "engagement.enabled",
	"engagement_interval":     "engagement.interval",
	"digest_hour":             "engagement.digest_hour",
	"reengagement_inactivity": "engagement.inactivity_threshold",

	"audit_enabled":          "audit.enabled",
	"audit_retention":        "audit.retention",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_log_to_stdout":    "audit.log_to_stdout",
}

// envTransformFunc maps an environment variable name to its config path.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
