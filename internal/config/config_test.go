// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
)

const testSecret = "k3J9x2mQ7vB4nL8pR1sT6wY0zA5cD3fG"

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3857 {
		t.Errorf("Server.Port = %d, want 3857", cfg.Server.Port)
	}
	if cfg.Database.Path != "/data/moodlog.duckdb" {
		t.Errorf("Database.Path = %q, want /data/moodlog.duckdb", cfg.Database.Path)
	}
	if cfg.Detection.Thresholds.Significant != 0.5 || cfg.Detection.Thresholds.Moderate != 0.3 {
		t.Errorf("Thresholds = %+v, want 0.5/0.3", cfg.Detection.Thresholds)
	}
	if cfg.Detection.Rules.SpikeThreshold != 0.3 {
		t.Errorf("Rules.SpikeThreshold = %v, want 0.3", cfg.Detection.Rules.SpikeThreshold)
	}
	if cfg.Detection.Cooldowns.Risk != 6*time.Hour {
		t.Errorf("Cooldowns.Risk = %v, want 6h", cfg.Detection.Cooldowns.Risk)
	}
	if cfg.Detection.Cooldowns.Positive != 0 {
		t.Errorf("Cooldowns.Positive = %v, want 0", cfg.Detection.Cooldowns.Positive)
	}
	if cfg.Notifications.Retention != 30*24*time.Hour {
		t.Errorf("Notifications.Retention = %v, want 720h", cfg.Notifications.Retention)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled should be false by default")
	}
	if cfg.NATS.Topic != "journal.analyzed" {
		t.Errorf("NATS.Topic = %q, want journal.analyzed", cfg.NATS.Topic)
	}
	if cfg.Badger.Backend != "badger" {
		t.Errorf("Badger.Backend = %q, want badger", cfg.Badger.Backend)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"SPIKE_THRESHOLD", "detection.rules.spike_threshold"},
		{"DEVIATION_SIGNIFICANT_THRESHOLD", "detection.thresholds.significant"},
		{"COOLDOWN_RISK", "detection.cooldowns.risk"},
		{"EMOTIONS_NEGATIVE", "detection.clusters.negative"},
		{"NATS_ENABLED", "nats.enabled"},
		{"DIGEST_HOUR", "engagement.digest_hour"},
		{"AUDIT_RETENTION", "audit.retention"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moodlog.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}

	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() with missing file = %q, want empty", got)
	}
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SPIKE_THRESHOLD", "0.25")
	t.Setenv("COOLDOWN_SPIKE", "6h")
	t.Setenv("CORS_ORIGINS", "https://a.example.org, https://b.example.org")
	t.Setenv("EMOTIONS_POSITIVE", "joy,calm")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Detection.Rules.SpikeThreshold != 0.25 {
		t.Errorf("SpikeThreshold = %v, want 0.25", cfg.Detection.Rules.SpikeThreshold)
	}
	if cfg.Detection.Cooldowns.Spike != 6*time.Hour {
		t.Errorf("Cooldowns.Spike = %v, want 6h", cfg.Detection.Cooldowns.Spike)
	}
	wantOrigins := []string{"https://a.example.org", "https://b.example.org"}
	if !reflect.DeepEqual(cfg.Security.CORSOrigins, wantOrigins) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, wantOrigins)
	}
	if !reflect.DeepEqual(cfg.Detection.Clusters.Positive, []string{"joy", "calm"}) {
		t.Errorf("Clusters.Positive = %v", cfg.Detection.Clusters.Positive)
	}
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	content := `
server:
  port: 8888
logging:
  level: warn
detection:
  thresholds:
    significant: 0.6
    moderate: 0.35
  cooldowns:
    risk: 2h
security:
  jwt_secret: "` + testSecret + `"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7777")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want env value 7777", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Detection.Thresholds.Significant != 0.6 {
		t.Errorf("Significant = %v, want 0.6", cfg.Detection.Thresholds.Significant)
	}
	if cfg.Detection.Cooldowns.Risk != 2*time.Hour {
		t.Errorf("Cooldowns.Risk = %v, want 2h", cfg.Detection.Cooldowns.Risk)
	}
	if cfg.Detection.Cooldowns.Deviation != 24*time.Hour {
		t.Errorf("Cooldowns.Deviation = %v, want default 24h", cfg.Detection.Cooldowns.Deviation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"missing secret", func(c *Config) { c.Security.JWTSecret = "" }, "JWT_SECRET is required"},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "at least 32"},
		{"placeholder secret", func(c *Config) { c.Security.JWTSecret = "CHANGEME-CHANGEME-CHANGEME-CHANGEME" }, "placeholder"},
		{"inverted thresholds", func(c *Config) { c.Detection.Thresholds.Moderate = 0.7 }, "deviation thresholds"},
		{"spike threshold out of range", func(c *Config) { c.Detection.Rules.SpikeThreshold = 0 }, "alert rules"},
		{"negative cooldown", func(c *Config) { c.Detection.Cooldowns.Spike = -time.Hour }, "COOLDOWN_SPIKE"},
		{"disabled cooldowns skip checks", func(c *Config) {
			c.Detection.Cooldowns.Enabled = false
			c.Detection.Cooldowns.EscalationFactor = 0
		}, ""},
		{"wildcard cors in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.CORSOrigins = []string{"*"}
		}, "CORS_ORIGINS"},
		{"unknown ledger backend", func(c *Config) { c.Badger.Backend = "redis" }, "LEDGER_BACKEND"},
		{"openai without key", func(c *Config) { c.Classifier.Provider = "openai" }, "OPENAI_API_KEY"},
		{"classifier url scheme", func(c *Config) { c.Classifier.URL = "ftp://x" }, "CLASSIFIER_URL"},
		{"digest hour", func(c *Config) { c.Engagement.DigestHour = 24 }, "DIGEST_HOUR"},
		{"short inactivity", func(c *Config) { c.Engagement.InactivityThreshold = time.Minute }, "REENGAGEMENT_INACTIVITY"},
		{"disabled engagement skips checks", func(c *Config) {
			c.Engagement.Enabled = false
			c.Engagement.Interval = 0
		}, ""},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "AUDIT_BUFFER_SIZE"},
		{"nats subscribers", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.SubscribersCount = 0
		}, "NATS_SUBSCRIBERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCooldownPeriods(t *testing.T) {
	periods := defaultConfig().Detection.Cooldowns.Periods()
	if !reflect.DeepEqual(periods, alerting.DefaultCooldowns()) {
		t.Errorf("Periods() = %v, want %v", periods, alerting.DefaultCooldowns())
	}
}

func TestClustersBuild(t *testing.T) {
	c := ClustersConfig{Positive: []string{"calm"}, Negative: []string{"dread"}, Anxiety: []string{"dread"}}.Build()
	if !c.IsPositive("calm") || !c.IsNegative("dread") {
		t.Error("custom clusters not applied")
	}
	if got := c.GroupOf("dread"); got != "anxiety" {
		t.Errorf("GroupOf(dread) = %q, want anxiety", got)
	}
}
