/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package availability stores per-actor booking profiles and derives free
// slots from them.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/cache"
	"github.com/friendsincode/inspectd/internal/conflict"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/validation"
)

// MaxSlotRangeDays bounds a single slot search.
const MaxSlotRangeDays = 62

// Store reads and maintains ActorAvailability records.
type Store struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    *events.Bus
	finder *conflict.Finder
	logger zerolog.Logger
}

// NewStore creates an availability store. cache and bus may be nil.
func NewStore(db *gorm.DB, c *cache.Cache, bus *events.Bus, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cache:  c,
		bus:    bus,
		finder: conflict.NewFinder(db),
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// Get returns the actor's availability, or a not-found error.
func (s *Store) Get(ctx context.Context, actorID string) (*models.ActorAvailability, error) {
	if s.cache != nil {
		if a, ok := s.cache.GetAvailability(ctx, actorID); ok {
			return a, nil
		}
	}

	var a models.ActorAvailability
	err := s.db.WithContext(ctx).Where("actor_id = ?", actorID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("availability for actor", actorID)
	}
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	if s.cache != nil {
		s.cache.SetAvailability(ctx, &a)
	}
	return &a, nil
}

// Upsert validates and stores the actor's availability, replacing any prior record.
func (s *Store) Upsert(ctx context.Context, in *models.ActorAvailability) (*models.ActorAvailability, error) {
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if err := Validate(in); err != nil {
		return nil, err
	}

	// Insert or replace by actor_id in a single statement.
	in.ID = uuid.NewString()
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		UpdateAll: true,
	}
	if err := s.db.WithContext(ctx).Clauses(upsert).Create(in).Error; err != nil {
		return nil, fmt.Errorf("upsert availability: %w", err)
	}

	var stored models.ActorAvailability
	if err := s.db.WithContext(ctx).Where("actor_id = ?", in.ActorID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload availability: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateAvailability(ctx, stored.ActorID)
	}
	if s.bus != nil {
		s.bus.Publish(events.EventAvailabilityUpdated, events.Payload{
			"resource_type": "actor_availability",
			"resource_id":   stored.ID,
			"subject_actor": stored.ActorID,
			"is_active":     stored.IsActive,
		})
	}

	s.logger.Info().Str("actor_id", stored.ActorID).Bool("active", stored.IsActive).Msg("availability updated")
	return &stored, nil
}

// Validate checks tags, the timezone and that every window ends after it starts.
func Validate(a *models.ActorAvailability) error {
	if a.ActorID == "" {
		return apperr.Validation("actor_id is required")
	}
	if err := validation.Struct(a); err != nil {
		return err
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return apperr.Validation("unknown timezone %q", a.Timezone)
	}
	check := func(kind, start, end string) error {
		s, err := validation.ParseClock(start)
		if err != nil {
			return err
		}
		e, err := validation.ParseClock(end)
		if err != nil {
			return err
		}
		if e <= s {
			return apperr.Validation("%s window %s-%s must end after it starts", kind, start, end)
		}
		return nil
	}
	for _, wh := range a.WorkingHours {
		if err := check("working hours", wh.StartTime, wh.EndTime); err != nil {
			return err
		}
	}
	for _, c := range a.CustomAvailability {
		if err := check("custom availability "+c.Date, c.StartTime, c.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// SlotQuery selects the actor, inclusive date range and minimum slot length.
type SlotQuery struct {
	ActorID  string
	From     time.Time
	To       time.Time
	Duration time.Duration
}

// Slots returns free slots for the query. A missing or inactive availability
// record yields an empty result, not an error.
func (s *Store) Slots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if q.Duration <= 0 {
		return nil, apperr.Validation("duration must be positive")
	}
	if q.To.Before(q.From) {
		return nil, apperr.Validation("to must not be before from")
	}
	if q.To.Sub(q.From) > MaxSlotRangeDays*24*time.Hour {
		return nil, apperr.Validation("date range must not exceed %d days", MaxSlotRangeDays)
	}

	a, err := s.Get(ctx, q.ActorID)
	if apperr.Is(err, apperr.KindNotFound) {
		return []Slot{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return []Slot{}, nil
	}

	loc := a.Location()
	rangeStart := civilDate(q.From, loc)
	rangeEnd := civilDate(q.To, loc).AddDate(0, 0, 1)
	buffer := a.Constraints.InterBookingBuffer()

	evs, err := s.finder.ActiveEvents(ctx, q.ActorID, rangeStart.Add(-buffer), rangeEnd.Add(buffer))
	if err != nil {
		return nil, err
	}
	return GenerateSlots(a, evs, q.From, q.To, q.Duration), nil
}
