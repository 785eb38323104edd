/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"fmt"
)

// pendingMarker is stored while the first request with a key is in flight.
const pendingMarker = "\x00pending"

// ReserveResult describes the outcome of reserving an idempotency key.
type ReserveResult struct {
	Reserved   bool   // caller owns the key and must Complete or Release it
	ResourceID string // set when an earlier request already completed
	InFlight   bool   // an earlier request with this key has not finished
}

// IdempotencyKey builds the storage key for a caller-scoped request key.
func IdempotencyKey(scope, callerID, key string) string {
	return fmt.Sprintf("%s%s:%s:%s", KeyIdempotency, scope, callerID, key)
}

// Reserve claims key for the current request. When Redis is available the
// claim is shared across instances.
func (c *Cache) Reserve(ctx context.Context, key string) (ReserveResult, error) {
	ttl := c.config.IdempotencyTTL

	if c.RedisAvailable() {
		ok, err := c.client.SetNX(ctx, key, pendingMarker, ttl).Result()
		if err != nil {
			c.handleError(err, "reserve")
			return ReserveResult{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return ReserveResult{Reserved: true}, nil
		}
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			c.handleError(err, "reserve_get")
			return ReserveResult{}, fmt.Errorf("read idempotency key: %w", err)
		}
		return existing(val), nil
	}

	if err := c.local.Add(key, pendingMarker, ttl); err == nil {
		return ReserveResult{Reserved: true}, nil
	}
	val, ok := c.local.Get(key)
	if !ok {
		// Expired between Add and Get; treat as a fresh claim.
		c.local.Set(key, pendingMarker, ttl)
		return ReserveResult{Reserved: true}, nil
	}
	s, _ := val.(string)
	return existing(s), nil
}

func existing(val string) ReserveResult {
	if val == pendingMarker || val == "" {
		return ReserveResult{InFlight: true}
	}
	return ReserveResult{ResourceID: val}
}

// Complete records the resource created under key.
func (c *Cache) Complete(ctx context.Context, key, resourceID string) {
	ttl := c.config.IdempotencyTTL
	if c.RedisAvailable() {
		if err := c.client.Set(ctx, key, resourceID, ttl).Err(); err != nil {
			c.handleError(err, "complete")
		} else {
			return
		}
	}
	c.local.Set(key, resourceID, ttl)
}

// Release forgets a reservation whose request failed, so a retry can run.
func (c *Cache) Release(ctx context.Context, key string) {
	c.local.Delete(key)
	if c.RedisAvailable() {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.handleError(err, "release")
		}
	}
}
