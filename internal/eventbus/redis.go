/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/inspectd/internal/events"
)

// ErrCircuitOpen is returned while the Redis publisher is backing off.
var ErrCircuitOpen = errors.New("redis publisher circuit open")

// RedisConfig contains the publisher's circuit breaker settings.
type RedisConfig struct {
	ChannelPrefix string
	Timeout       time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis publisher configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		ChannelPrefix: "inspectd",
		Timeout:       2 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// RedisPublisher publishes events on Redis pub/sub channels. After
// MaxFailures consecutive errors it stops trying until CheckInterval passes.
type RedisPublisher struct {
	client *redis.Client
	cfg    RedisConfig
	nodeID string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	failCount int
	openUntil time.Time
}

// NewRedisPublisher wraps an existing client; the caller owns the client.
func NewRedisPublisher(client *redis.Client, cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisPublisher {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &RedisPublisher{
		client: client,
		cfg:    cfg,
		nodeID: nodeID,
		logger: logger.With().Str("component", "redis_publisher").Logger(),
		now:    time.Now,
	}
}

// Publish sends one event unless the circuit is open.
func (p *RedisPublisher) Publish(ctx context.Context, eventType events.EventType, payload events.Payload) error {
	if p.isOpen() {
		return ErrCircuitOpen
	}

	data, err := marshalMessage(eventType, payload, p.nodeID)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, subject(p.cfg.ChannelPrefix, eventType), data).Err(); err != nil {
		p.recordFailure()
		return fmt.Errorf("redis publish %s: %w", eventType, err)
	}

	p.mu.Lock()
	p.failCount = 0
	p.mu.Unlock()
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (p *RedisPublisher) Close() error { return nil }

func (p *RedisPublisher) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openUntil.IsZero() {
		return false
	}
	if p.now().Before(p.openUntil) {
		return true
	}
	// Half-open: allow one attempt; a failure re-opens immediately.
	p.openUntil = time.Time{}
	p.failCount = p.cfg.MaxFailures - 1
	return false
}

func (p *RedisPublisher) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCount++
	if p.failCount >= p.cfg.MaxFailures {
		p.openUntil = p.now().Add(p.cfg.CheckInterval)
		p.logger.Warn().
			Int("fail_count", p.failCount).
			Time("retry_at", p.openUntil).
			Msg("Redis failure threshold reached, pausing publishes")
	}
}
