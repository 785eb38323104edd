/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/conflict"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/locks"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

const defaultInspectionTitle = "Inspection"

// BookingRequest asks for an inspection in the actor's calendar.
type BookingRequest struct {
	ActorID     string            `json:"actor_id"`
	Role        models.RoleName   `json:"role"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Title       string            `json:"title,omitempty"`
	SubjectRefs map[string]string `json:"subject_refs,omitempty"`

	// RequestedBy is the caller placing the booking, kept for the audit trail.
	RequestedBy string `json:"-"`
}

// BookInspection books an INSPECTION event for req.ActorID. Checks run in a
// fixed order and the first failure is returned: window, availability,
// advance notice, daily capacity, conflicts. The capacity and conflict checks
// and the insert run while holding the actor's per-date booking locks.
func (s *Service) BookInspection(ctx context.Context, req BookingRequest) (ev *models.CalendarEvent, err error) {
	ctx, span := telemetry.StartSpan(ctx, "calendar.BookInspection",
		attribute.String("actor_id", req.ActorID),
		attribute.String("start_time", req.StartTime.UTC().Format(time.RFC3339)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.recordBookingOutcome(req, ev, err)
	}()

	if err := conflict.ValidateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		return nil, apperr.Validation("actor_id is required")
	}

	profile, err := s.avail.Get(ctx, req.ActorID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if profile == nil || !profile.IsActive {
		return nil, apperr.Constraint("availability not configured")
	}
	loc := profile.Location()

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, bookingKeys(req.ActorID, req.StartTime, req.EndTime, loc)...)
	telemetry.BookingLockWait.Observe(time.Since(waitStart).Seconds())
	if errors.Is(err, locks.ErrLockTimeout) {
		return nil, apperr.Constraint("another booking for this actor and date is in progress")
	}
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	defer unlock()

	now := s.now()
	notice := time.Duration(profile.Constraints.AdvanceBookingDays) * 24 * time.Hour
	if req.StartTime.Sub(now) < notice {
		if profile.Constraints.AdvanceBookingDays == 0 {
			return nil, apperr.Constraint("bookings cannot start in the past")
		}
		return nil, apperr.Constraint("bookings require at least %d days advance notice", profile.Constraints.AdvanceBookingDays)
	}

	title := req.Title
	if title == "" {
		title = defaultInspectionTitle
	}
	ev = &models.CalendarEvent{
		ID:              uuid.NewString(),
		Title:           title,
		EventType:       models.EventTypeInspection,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		Status:          models.EventStatusScheduled,
		OrganizerID:     req.ActorID,
		OrganizerRole:   models.NormalizeRole(req.Role),
		RelatedEntities: req.SubjectRefs,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finder := s.finder.WithTx(tx)

		if limit := profile.Constraints.MaxDailyBookings; limit > 0 {
			dayStart := dayOf(req.StartTime, loc)
			dayEnd := dayStart.AddDate(0, 0, 1)
			sameDay, err := finder.ActiveEvents(ctx, req.ActorID, dayStart, dayEnd)
			if err != nil {
				return err
			}
			booked := 0
			for _, other := range sameDay {
				if other.EventType == models.EventTypeInspection && !other.StartTime.Before(dayStart) && other.StartTime.Before(dayEnd) {
					booked++
				}
			}
			if booked >= limit {
				return apperr.Constraint("daily booking limit of %d reached", limit)
			}
		}

		conflicts, err := finder.Find(ctx, conflict.Query{ActorID: req.ActorID, Start: ev.StartTime, End: ev.EndTime})
		if err != nil {
			return err
		}
		if len(conflicts) > 0 && !profile.Preferences.AutoAcceptWithConflict {
			return apperr.Constraint("requested time conflicts with %d existing event(s)", len(conflicts))
		}
		annotate(ev, conflicts)

		if err := tx.Create(ev).Error; err != nil {
			return storeError("create inspection event", err)
		}
		return nil
	})
	if err != nil {
		ev = nil
		return nil, err
	}

	s.publish(events.EventBookingCreated, ev, requester(req), map[string]any{"subject_refs": req.SubjectRefs})
	s.logger.Info().
		Str("event_id", ev.ID).
		Str("actor_id", req.ActorID).
		Time("start", ev.StartTime).
		Bool("has_conflict", ev.HasConflict).
		Msg("inspection booked")

	if s.notifier != nil {
		if err := s.notifier.SendBookingConfirmation(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("booking confirmation failed")
		}
	}
	if ev.HasConflict {
		telemetry.ConflictsDetectedTotal.WithLabelValues("booking").Add(float64(len(ev.Conflicts)))
		s.reportConflict(ctx, ev)
	}
	return ev, nil
}

func (s *Service) recordBookingOutcome(req BookingRequest, ev *models.CalendarEvent, err error) {
	switch {
	case err == nil && ev != nil && ev.HasConflict:
		telemetry.BookingsTotal.WithLabelValues("booked_with_conflict").Inc()
	case err == nil:
		telemetry.BookingsTotal.WithLabelValues("booked").Inc()
	default:
		kind := apperr.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		telemetry.BookingsTotal.WithLabelValues("rejected_" + string(kind)).Inc()
		if s.bus != nil {
			s.bus.Publish(events.EventBookingRejected, events.Payload{
				"actor_id":      requester(req),
				"resource_type": "actor_availability",
				"resource_id":   req.ActorID,
				"reason":        err.Error(),
				"start_time":    req.StartTime.UTC().Format(time.RFC3339),
				"end_time":      req.EndTime.UTC().Format(time.RFC3339),
			})
		}
	}
}

func requester(req BookingRequest) string {
	if req.RequestedBy != "" {
		return req.RequestedBy
	}
	return req.ActorID
}

// bookingKeys returns the lock keys for every date in the actor's timezone
// the window touches at its start and end.
func bookingKeys(actorID string, start, end time.Time, loc *time.Location) []string {
	first := start.In(loc).Format("2006-01-02")
	last := end.Add(-time.Nanosecond).In(loc).Format("2006-01-02")
	if first == last {
		return []string{locks.BookingKey(actorID, first)}
	}
	return []string{locks.BookingKey(actorID, first), locks.BookingKey(actorID, last)}
}

// dayOf returns midnight of t's date in loc.
func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
