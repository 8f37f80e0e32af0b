/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Position backend selection.
type PositionBackend string

const (
	PositionDB    PositionBackend = "db"
	PositionRedis PositionBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Companion server (the on-site content and licensing service).
	CompanionBaseURL   string
	CompanionSocketURL string
	LicenseKey         string

	// Playlist assignment for this screen.
	PlaylistID string

	DBBackend DatabaseBackend
	DBDSN     string

	// Position persistence
	PositionBackend PositionBackend
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Rotation tuning
	VendorAdPosition       int
	DefaultDurationSeconds int
	LivestreamPollSeconds  int
	VendorReportDelaySecs  int
	ExhaustedRetrySeconds  int
	HardRestartThreshold   int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SIGNBEAM_ENV", "SB_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SIGNBEAM_HTTP_BIND", "SB_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"SIGNBEAM_HTTP_PORT", "SB_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"SIGNBEAM_METRICS_BIND", "SB_METRICS_BIND"}, "127.0.0.1:9000"),

		CompanionBaseURL:   getEnvAny([]string{"SIGNBEAM_COMPANION_URL", "SB_COMPANION_URL"}, "http://localhost:3215"),
		CompanionSocketURL: getEnvAny([]string{"SIGNBEAM_COMPANION_SOCKET_URL", "SB_COMPANION_SOCKET_URL"}, "ws://localhost:3215/socket"),
		LicenseKey:         getEnvAny([]string{"SIGNBEAM_LICENSE_KEY", "SB_LICENSE_KEY"}, ""),

		PlaylistID: getEnvAny([]string{"SIGNBEAM_PLAYLIST_ID", "SB_PLAYLIST_ID"}, ""),

		DBBackend: DatabaseBackend(getEnvAny([]string{"SIGNBEAM_DB_BACKEND", "SB_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"SIGNBEAM_DB_DSN", "SB_DB_DSN"}, "signbeam_player.db"),

		PositionBackend: PositionBackend(getEnvAny([]string{"SIGNBEAM_POSITION_BACKEND", "SB_POSITION_BACKEND"}, string(PositionDB))),
		RedisAddr:       getEnvAny([]string{"SIGNBEAM_REDIS_ADDR", "SB_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:   getEnvAny([]string{"SIGNBEAM_REDIS_PASSWORD", "SB_REDIS_PASSWORD"}, ""),
		RedisDB:         getEnvIntAny([]string{"SIGNBEAM_REDIS_DB", "SB_REDIS_DB"}, 0),

		VendorAdPosition:       getEnvIntAny([]string{"SIGNBEAM_VENDOR_AD_POSITION", "SB_VENDOR_AD_POSITION"}, 4),
		DefaultDurationSeconds: getEnvIntAny([]string{"SIGNBEAM_DEFAULT_DURATION_SECONDS", "SB_DEFAULT_DURATION_SECONDS"}, 20),
		LivestreamPollSeconds:  getEnvIntAny([]string{"SIGNBEAM_LIVESTREAM_POLL_SECONDS", "SB_LIVESTREAM_POLL_SECONDS"}, 5),
		VendorReportDelaySecs:  getEnvIntAny([]string{"SIGNBEAM_VENDOR_REPORT_DELAY_SECONDS", "SB_VENDOR_REPORT_DELAY_SECONDS"}, 5),
		ExhaustedRetrySeconds:  getEnvIntAny([]string{"SIGNBEAM_EXHAUSTED_RETRY_SECONDS", "SB_EXHAUSTED_RETRY_SECONDS"}, 5),
		HardRestartThreshold:   getEnvIntAny([]string{"SIGNBEAM_HARD_RESTART_THRESHOLD", "SB_HARD_RESTART_THRESHOLD"}, 3),

		TracingEnabled:    getEnvBoolAny([]string{"SIGNBEAM_TRACING_ENABLED", "SB_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SIGNBEAM_OTLP_ENDPOINT", "SB_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SIGNBEAM_TRACING_SAMPLE_RATE", "SB_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.PositionBackend != PositionDB && cfg.PositionBackend != PositionRedis {
		return nil, fmt.Errorf("unsupported position backend %q", cfg.PositionBackend)
	}

	if cfg.PlaylistID == "" {
		return nil, fmt.Errorf("SIGNBEAM_PLAYLIST_ID or SB_PLAYLIST_ID must be provided")
	}

	if cfg.VendorAdPosition <= 0 {
		return nil, fmt.Errorf("SIGNBEAM_VENDOR_AD_POSITION must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.LicenseKey == "" {
		return nil, fmt.Errorf("SIGNBEAM_LICENSE_KEY must be set in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// LivestreamPollInterval returns the livestream eligibility poll cadence.
func (c *Config) LivestreamPollInterval() time.Duration {
	return time.Duration(c.LivestreamPollSeconds) * time.Second
}

// VendorReportDelay returns the vendor proof-of-play report delay.
func (c *Config) VendorReportDelay() time.Duration {
	return time.Duration(c.VendorReportDelaySecs) * time.Second
}

// ExhaustedRetryInterval returns the retry cadence while nothing is eligible.
func (c *Config) ExhaustedRetryInterval() time.Duration {
	return time.Duration(c.ExhaustedRetrySeconds) * time.Second
}

// DefaultDuration returns the display duration for items without one.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationSeconds) * time.Second
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use SIGNBEAM_ENV (or SB_ENV)",
		"PLAYLIST_ID":     "use SIGNBEAM_PLAYLIST_ID (or SB_PLAYLIST_ID)",
		"COMPANION_URL":   "use SIGNBEAM_COMPANION_URL (or SB_COMPANION_URL)",
		"TRACING_ENABLED": "use SIGNBEAM_TRACING_ENABLED (or SB_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use SIGNBEAM_OTLP_ENDPOINT (or SB_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
