/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLeaseDuration = 10 * time.Second
	defaultWaitTimeout   = 5 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	defaultKeyPrefix     = "inspectd:lock:"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lease taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisConfig configures lease-based locking.
type RedisConfig struct {
	KeyPrefix string
	// LeaseDuration bounds how long a crashed holder can block others.
	LeaseDuration time.Duration
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default lease settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:     defaultKeyPrefix,
		LeaseDuration: defaultLeaseDuration,
		WaitTimeout:   defaultWaitTimeout,
		RetryInterval: defaultRetryInterval,
	}
}

// Redis holds keys as SET NX PX leases shared by every instance.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger
}

// NewRedis creates a Redis-backed locker over an existing client.
func NewRedis(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *Redis {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "redis_lock").Logger(),
	}
}

// Lock acquires every key in sorted order, polling until WaitTimeout.
func (r *Redis) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalizeKeys(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.WaitTimeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	release := func() {
		// Release must work even if the request context is already cancelled.
		relCtx, relCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer relCancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(relCtx, r.client, []string{r.cfg.KeyPrefix + held[i]}, token).Err(); err != nil {
				r.logger.Warn().Err(err).Str("key", held[i]).Msg("release lock failed; lease will expire")
			}
		}
	}

	for _, key := range keys {
		if err := r.acquire(waitCtx, ctx, r.cfg.KeyPrefix+key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (r *Redis) acquire(waitCtx, parent context.Context, key, token string) error {
	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(waitCtx, key, token, r.cfg.LeaseDuration).Result()
		if err == nil && ok {
			return nil
		}
		if err != nil && waitCtx.Err() == nil {
			return fmt.Errorf("set lock %s: %w", key, err)
		}

		select {
		case <-waitCtx.Done():
			if parent.Err() != nil {
				return parent.Err()
			}
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}
