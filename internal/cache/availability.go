/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"

	"github.com/friendsincode/inspectd/internal/models"
)

// GetAvailability returns the cached availability record for an actor.
func (c *Cache) GetAvailability(ctx context.Context, actorID string) (*models.ActorAvailability, bool) {
	var a models.ActorAvailability
	if !c.get(ctx, KeyAvailability+actorID, &a) {
		return nil, false
	}
	c.logger.Debug().Str("actor_id", actorID).Msg("availability cache hit")
	return &a, true
}

// SetAvailability caches an availability record.
func (c *Cache) SetAvailability(ctx context.Context, a *models.ActorAvailability) {
	if a == nil {
		return
	}
	if err := c.set(ctx, KeyAvailability+a.ActorID, a, c.config.AvailabilityTTL); err != nil {
		c.logger.Debug().Err(err).Str("actor_id", a.ActorID).Msg("failed to cache availability")
	}
}

// InvalidateAvailability drops the cached record after a write.
func (c *Cache) InvalidateAvailability(ctx context.Context, actorID string) {
	if err := c.delete(ctx, KeyAvailability+actorID); err != nil {
		c.logger.Warn().Err(err).Str("actor_id", actorID).Msg("failed to invalidate availability cache")
	}
}
