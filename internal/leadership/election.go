/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance to run periodic work.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/inspectd/internal/telemetry"
)

const (
	// Default election key prefix in Redis
	defaultKeyPrefix = "inspectd:leader:"

	// Default lease duration - leader must renew before this expires
	defaultLeaseDuration = 15 * time.Second

	// Default retry interval - how often the lease is renewed or contested
	defaultRetryInterval = 5 * time.Second
)

// renewScript extends the lease only while we still hold it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// releaseScript deletes the lease only while we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Leader reports whether this instance should run leader-only work.
type Leader interface {
	IsLeader() bool
}

// Single is the leader of a one-instance deployment.
type Single struct{}

// IsLeader always returns true.
func (Single) IsLeader() bool { return true }

// Config configures leader election behavior.
type Config struct {
	// Name identifies the election, e.g. "sla-scan".
	Name string

	KeyPrefix     string
	LeaseDuration time.Duration
	RetryInterval time.Duration

	// InstanceID uniquely identifies this instance
	InstanceID string
}

// DefaultConfig returns default election configuration.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		KeyPrefix:     defaultKeyPrefix,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
		InstanceID:    uuid.NewString(),
	}
}

// Election holds a Redis lease; the holder is the leader.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	key    string

	isLeader atomic.Bool
}

// NewElection creates a leader election over an existing client.
func NewElection(client *redis.Client, config Config, logger zerolog.Logger) (*Election, error) {
	if client == nil {
		return nil, errors.New("leader election requires a redis client")
	}
	if config.Name == "" {
		return nil, errors.New("leader election requires a name")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.RetryInterval >= config.LeaseDuration {
		return nil, fmt.Errorf("retry interval %s must be shorter than lease %s", config.RetryInterval, config.LeaseDuration)
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}

	return &Election{
		client: client,
		logger: logger.With().Str("component", "leader_election").Str("election", config.Name).Logger(),
		config: config,
		key:    config.KeyPrefix + config.Name,
	}, nil
}

// Run campaigns until ctx is done, then releases the lease if held.
func (e *Election) Run(ctx context.Context) {
	e.logger.Info().
		Str("instance_id", e.config.InstanceID).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	ticker := time.NewTicker(e.config.RetryInterval)
	defer ticker.Stop()

	e.attempt(ctx)
	for {
		select {
		case <-ctx.Done():
			e.release()
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// attempt acquires or renews the lease.
func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("leadership attempt failed")
		}
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.key, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, e.client, []string{e.key}, e.config.InstanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) release() {
	if !e.isLeader.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, e.client, []string{e.key}, e.config.InstanceID).Err(); err != nil {
		e.logger.Error().Err(err).Msg("failed to release leadership lease")
	}
	e.setLeader(false)
}

func (e *Election) setLeader(leader bool) {
	if e.isLeader.Swap(leader) == leader {
		return
	}

	labels := []string{e.config.Name, e.config.InstanceID}
	if leader {
		e.logger.Info().Str("instance_id", e.config.InstanceID).Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(labels...).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(append(labels, "acquired")...).Inc()
	} else {
		e.logger.Warn().Str("instance_id", e.config.InstanceID).Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(labels...).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(append(labels, "lost")...).Inc()
	}
}
