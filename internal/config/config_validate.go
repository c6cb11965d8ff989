// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

var validLogFormats = map[string]bool{"json": true, "console": true}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateEngagement(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	return c.validateNATS()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, disabled")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Badger.Backend {
	case "memory":
		if c.Badger.MemoryCapacity < 1 {
			return fmt.Errorf("LEDGER_MEMORY_CAPACITY must be positive")
		}
	case "badger":
		if !c.Badger.InMemory && c.Badger.Path == "" {
			return fmt.Errorf("LEDGER_PATH is required unless LEDGER_IN_MEMORY=true")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of: badger, memory")
	}
	if c.Badger.TTL <= 0 {
		return fmt.Errorf("LEDGER_TTL must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.IsProduction() {
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain a wildcard in production")
			}
		}
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 || c.Security.RateLimitReqs > 100000 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between 1 and 100000")
	}
	if c.Security.RateLimitWindow < time.Second || c.Security.RateLimitWindow > time.Hour {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between 1s and 1h")
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if err := c.Detection.Thresholds.Validate(); err != nil {
		return fmt.Errorf("deviation thresholds: %w", err)
	}
	if err := c.Detection.Rules.Validate(); err != nil {
		return fmt.Errorf("alert rules: %w", err)
	}
	if len(c.Detection.Clusters.Positive) == 0 || len(c.Detection.Clusters.Negative) == 0 {
		return fmt.Errorf("EMOTIONS_POSITIVE and EMOTIONS_NEGATIVE must not be empty")
	}
	cd := c.Detection.Cooldowns
	if !cd.Enabled {
		return nil
	}
	for name, d := range map[string]time.Duration{
		"COOLDOWN_RISK":      cd.Risk,
		"COOLDOWN_SPIKE":     cd.Spike,
		"COOLDOWN_PATTERN":   cd.Pattern,
		"COOLDOWN_DEVIATION": cd.Deviation,
		"COOLDOWN_POSITIVE":  cd.Positive,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if cd.EscalationFactor < 1 {
		return fmt.Errorf("COOLDOWN_ESCALATION_FACTOR must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.Retention <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION must be positive")
	}
	if c.Notifications.SweepInterval <= 0 {
		return fmt.Errorf("NOTIFICATION_SWEEP_INTERVAL must be positive")
	}
	if c.WebSocket.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

func (c *Config) validateEngagement() error {
	if !c.Engagement.Enabled {
		return nil
	}
	if c.Engagement.Interval <= 0 {
		return fmt.Errorf("ENGAGEMENT_INTERVAL must be positive")
	}
	if c.Engagement.DigestHour < 0 || c.Engagement.DigestHour > 23 {
		return fmt.Errorf("DIGEST_HOUR must be between 0 and 23")
	}
	if c.Engagement.InactivityThreshold < time.Hour {
		return fmt.Errorf("REENGAGEMENT_INACTIVITY must be at least 1h")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.Retention <= 0 {
		return fmt.Errorf("AUDIT_RETENTION must be positive")
	}
	if c.Audit.CleanupInterval <= 0 {
		return fmt.Errorf("AUDIT_CLEANUP_INTERVAL must be positive")
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Provider {
	case "none":
		return nil
	case "http":
		return validateHTTPURL(c.Classifier.URL, "CLASSIFIER_URL")
	case "openai":
		if c.Classifier.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when CLASSIFIER_PROVIDER=openai")
		}
		return nil
	default:
		return fmt.Errorf("CLASSIFIER_PROVIDER must be one of: http, openai, none")
	}
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > 64 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and 64")
	}
	return nil
}

func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}

// placeholderPatterns catch secrets copied verbatim from example configs.
var placeholderPatterns = []string{
	"REPLACE", "CHANGEME", "CHANGE_ME", "YOUR_SECRET", "PLACEHOLDER", "EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, p := range placeholderPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
