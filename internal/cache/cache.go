/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a two-tier cache: an in-process go-cache store in
// front of an optional shared Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultAvailabilityTTL = 5 * time.Minute
	DefaultIdempotencyTTL  = 24 * time.Hour
	DefaultLocalTTL        = 1 * time.Minute
)

// Key prefixes
const (
	KeyAvailability = "inspectd:cache:availability:" // + actor_id
	KeyIdempotency  = "inspectd:idem:"               // + scope:caller:key
)

// Config contains cache configuration.
type Config struct {
	AvailabilityTTL time.Duration
	IdempotencyTTL  time.Duration
	// LocalTTL caps how long the in-process tier serves a value another
	// instance may already have invalidated.
	LocalTTL time.Duration

	// If true, stop using Redis after the first error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		AvailabilityTTL: DefaultAvailabilityTTL,
		IdempotencyTTL:  DefaultIdempotencyTTL,
		LocalTTL:        DefaultLocalTTL,
		DisableOnError:  true,
	}
}

// Cache provides local plus optional Redis caching with graceful fallback.
type Cache struct {
	local  *gocache.Cache
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Redis circuit breaker state
}

// New creates a cache. A nil client gives a local-only cache.
func New(cfg Config, client *redis.Client, logger zerolog.Logger) *Cache {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = DefaultLocalTTL
	}
	return &Cache{
		local:  gocache.New(cfg.LocalTTL, 2*cfg.LocalTTL),
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}
}

// RedisAvailable returns true if the shared tier is operational.
func (c *Cache) RedisAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling redis cache tier due to error")
	}
}

func (c *Cache) localTTL(ttl time.Duration) time.Duration {
	if ttl < c.config.LocalTTL {
		return ttl
	}
	return c.config.LocalTTL
}

// get retrieves a value and unmarshals it into dest.
func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if raw, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(raw.([]byte), dest); err == nil {
			return true
		}
	}
	if !c.RedisAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	c.local.Set(key, data, c.config.LocalTTL)
	return true
}

// set stores a value with TTL in both tiers.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	c.local.Set(key, data, c.localTTL(ttl))

	if !c.RedisAvailable() {
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// delete removes a key from both tiers.
func (c *Cache) delete(ctx context.Context, key string) error {
	c.local.Delete(key)
	if !c.RedisAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}
