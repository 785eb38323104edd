/*
Copyright (C) 2026 Friends Incode

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

// LockBackend selects how booking windows are serialized.
type LockBackend string

const (
	LockLocal LockBackend = "local"
	LockRedis LockBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	LogFormat     string // console or json
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string

	// Booking lock
	LockBackend LockBackend
	LockTTL     time.Duration

	// Redis (locks, cache, pubsub)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool
	CacheTTL      time.Duration

	// External event publishing
	NATSURL            string
	EventSubjectPrefix string

	// SLA
	SLATablePath      string
	NearDeadlineHours int
	// SLAScanInterval of 0 disables the in-process scanner.
	SLAScanInterval time.Duration

	// Mutation rate limiting per caller
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"INSPECTD_ENV", "APP_ENV"}, "development"),
		LogFormat:     getEnvAny([]string{"INSPECTD_LOG_FORMAT"}, "console"),
		HTTPBind:      getEnvAny([]string{"INSPECTD_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"INSPECTD_HTTP_PORT", "PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"INSPECTD_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"INSPECTD_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"INSPECTD_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"INSPECTD_METRICS_BIND"}, "127.0.0.1:9000"),

		LockBackend: LockBackend(getEnvAny([]string{"INSPECTD_LOCK_BACKEND"}, string(LockLocal))),
		LockTTL:     time.Duration(getEnvIntAny([]string{"INSPECTD_LOCK_TTL_SECONDS"}, 10)) * time.Second,

		RedisAddr:     getEnvAny([]string{"INSPECTD_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"INSPECTD_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"INSPECTD_REDIS_DB"}, 0),
		CacheEnabled:  getEnvBoolAny([]string{"INSPECTD_CACHE_ENABLED"}, false),
		CacheTTL:      time.Duration(getEnvIntAny([]string{"INSPECTD_CACHE_TTL_SECONDS"}, 300)) * time.Second,

		NATSURL:            getEnvAny([]string{"INSPECTD_NATS_URL", "NATS_URL"}, ""),
		EventSubjectPrefix: getEnvAny([]string{"INSPECTD_EVENT_SUBJECT_PREFIX"}, "inspectd"),

		SLATablePath:      getEnvAny([]string{"INSPECTD_SLA_TABLE"}, ""),
		NearDeadlineHours: getEnvIntAny([]string{"INSPECTD_NEAR_DEADLINE_HOURS"}, 24),
		SLAScanInterval:   time.Duration(getEnvIntAny([]string{"INSPECTD_SLA_SCAN_INTERVAL_SECONDS"}, 0)) * time.Second,

		RateLimitRPS:   getEnvFloatAny([]string{"INSPECTD_RATE_LIMIT_RPS"}, 5),
		RateLimitBurst: getEnvIntAny([]string{"INSPECTD_RATE_LIMIT_BURST"}, 10),

		TracingEnabled:    getEnvBoolAny([]string{"INSPECTD_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"INSPECTD_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"INSPECTD_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.LockBackend != LockLocal && cfg.LockBackend != LockRedis {
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.LockBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("INSPECTD_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("INSPECTD_JWT_SIGNING_KEY must be provided")
	}

	if cfg.SLAScanInterval < 0 {
		return nil, fmt.Errorf("INSPECTD_SLA_SCAN_INTERVAL_SECONDS must not be negative")
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("INSPECTD_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("INSPECTD_JWT_SIGNING_KEY must be at least 32 bytes in production")
		}
		// Two replicas with local locks can double-book the same window.
		if cfg.LockBackend == LockLocal && getEnvIntAny([]string{"INSPECTD_REPLICAS"}, 1) > 1 {
			return nil, fmt.Errorf("INSPECTD_LOCK_BACKEND=redis is required when INSPECTD_REPLICAS > 1")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"JWT_SIGNING_KEY": "use INSPECTD_JWT_SIGNING_KEY",
		"DB_DSN":          "use INSPECTD_DB_DSN (or DATABASE_URL)",
		"TRACING_ENABLED": "use INSPECTD_TRACING_ENABLED",
		"SLA_TABLE":       "use INSPECTD_SLA_TABLE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// NearDeadlineWindow returns the look-ahead used for SLA alerts.
func (c *Config) NearDeadlineWindow() time.Duration {
	if c == nil || c.NearDeadlineHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.NearDeadlineHours) * time.Hour
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
