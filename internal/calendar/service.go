/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package calendar manages calendar events and books inspections against
// actor availability.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/conflict"
	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/locks"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/policy"
	"github.com/friendsincode/inspectd/internal/telemetry"
	"github.com/friendsincode/inspectd/internal/validation"
)

// MaxUpcomingDays bounds GetUpcomingEvents and ExportICS.
const MaxUpcomingDays = 366

// Notifier delivers booking side effects. Failures never undo a booking.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, ev *models.CalendarEvent) error
	SendConflictAlert(ctx context.Context, ev *models.CalendarEvent) error
}

// Service owns calendar events.
type Service struct {
	db       *gorm.DB
	avail    *availability.Store
	finder   *conflict.Finder
	locker   locks.Locker
	notifier Notifier
	bus      *events.Bus
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a calendar service. notifier and bus may be nil.
func NewService(database *gorm.DB, avail *availability.Store, locker locks.Locker, notifier Notifier, bus *events.Bus, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = locks.NewLocal()
	}
	return &Service{
		db:       database,
		avail:    avail,
		finder:   conflict.NewFinder(database),
		locker:   locker,
		notifier: notifier,
		bus:      bus,
		logger:   logger.With().Str("component", "calendar").Logger(),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ParticipantInput names an invitee.
type ParticipantInput struct {
	ActorID string          `json:"actor_id" validate:"required,max=64"`
	Role    models.RoleName `json:"role,omitempty"`
}

// CreateEventInput is a new calendar event.
type CreateEventInput struct {
	Title           string             `json:"title" validate:"required,max=255"`
	EventType       models.EventType   `json:"event_type" validate:"required,oneof=INSPECTION MEETING OTHER"`
	StartTime       time.Time          `json:"start_time" validate:"required"`
	EndTime         time.Time          `json:"end_time" validate:"required"`
	OrganizerID     string             `json:"organizer_id" validate:"required,max=64"`
	OrganizerRole   models.RoleName    `json:"organizer_role,omitempty"`
	Participants    []ParticipantInput `json:"participants,omitempty" validate:"dive"`
	RelatedEntities map[string]string  `json:"related_entities,omitempty"`
}

// EventUpdate holds the mutable fields of an event. Nil fields are left alone.
type EventUpdate struct {
	Title           *string           `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	RelatedEntities map[string]string `json:"related_entities,omitempty"`
}

// CreateEvent stores an event. Conflicts are recorded on the event and
// reported, but never block creation.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (ev *models.CalendarEvent, err error) {
	ctx, span := telemetry.StartSpan(ctx, "calendar.CreateEvent", attribute.String("organizer_id", in.OrganizerID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := conflict.ValidateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	ev = &models.CalendarEvent{
		ID:              uuid.NewString(),
		Title:           in.Title,
		EventType:       in.EventType,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		Status:          models.EventStatusScheduled,
		OrganizerID:     in.OrganizerID,
		OrganizerRole:   models.NormalizeRole(in.OrganizerRole),
		RelatedEntities: in.RelatedEntities,
	}
	seen := map[string]bool{in.OrganizerID: true}
	for _, p := range in.Participants {
		if seen[p.ActorID] {
			continue
		}
		seen[p.ActorID] = true
		ev.Participants = append(ev.Participants, models.EventParticipant{
			ID:      uuid.NewString(),
			EventID: ev.ID,
			ActorID: p.ActorID,
			Role:    models.NormalizeRole(p.Role),
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conflicts, err := s.detect(ctx, s.finder.WithTx(tx), ev)
		if err != nil {
			return err
		}
		annotate(ev, conflicts)
		if err := tx.Create(ev).Error; err != nil {
			return storeError("create event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventCalendarCreated, ev, in.OrganizerID, nil)
	if ev.HasConflict {
		telemetry.ConflictsDetectedTotal.WithLabelValues("create").Add(float64(len(ev.Conflicts)))
		s.reportConflict(ctx, ev)
	}

	s.logger.Info().
		Str("event_id", ev.ID).
		Str("organizer_id", ev.OrganizerID).
		Str("type", string(ev.EventType)).
		Int("conflicts", len(ev.Conflicts)).
		Msg("event created")
	return ev, nil
}

// GetEvent returns an event. Unknown and soft-deleted ids are not found.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	return loadEvent(ctx, s.db, id)
}

func loadEvent(ctx context.Context, tx *gorm.DB, id string) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	err := tx.WithContext(ctx).Preload("Participants").First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return &ev, nil
}

// UpdateEvent applies upd. A change to either bound re-runs conflict detection.
func (s *Service) UpdateEvent(ctx context.Context, id string, upd EventUpdate, actor policy.Actor) (*models.CalendarEvent, error) {
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, actor, policy.ActionUpdate, events.EventCalendarUpdated, func(ev *models.CalendarEvent) (bool, error) {
		if ev.Status == models.EventStatusCancelled {
			return false, apperr.Constraint("cancelled events cannot be modified")
		}
		if upd.Title != nil {
			ev.Title = *upd.Title
		}
		if upd.RelatedEntities != nil {
			ev.RelatedEntities = upd.RelatedEntities
		}
		if upd.StartTime == nil && upd.EndTime == nil {
			return false, nil
		}
		start, end := ev.StartTime, ev.EndTime
		if upd.StartTime != nil {
			start = *upd.StartTime
		}
		if upd.EndTime != nil {
			end = *upd.EndTime
		}
		if err := conflict.ValidateWindow(start, end); err != nil {
			return false, err
		}
		ev.StartTime, ev.EndTime = start.UTC(), end.UTC()
		return true, nil
	})
}

// ConfirmEvent moves a scheduled or rescheduled event to confirmed.
func (s *Service) ConfirmEvent(ctx context.Context, id string, actor policy.Actor) (*models.CalendarEvent, error) {
	return s.mutate(ctx, id, actor, policy.ActionConfirm, events.EventCalendarConfirmed, func(ev *models.CalendarEvent) (bool, error) {
		switch ev.Status {
		case models.EventStatusScheduled, models.EventStatusRescheduled:
			ev.Status = models.EventStatusConfirmed
			return false, nil
		}
		return false, apperr.Constraint("event in status %s cannot be confirmed", ev.Status)
	})
}

// RescheduleEvent moves the event to a new window and recomputes conflicts.
func (s *Service) RescheduleEvent(ctx context.Context, id string, start, end time.Time, actor policy.Actor) (*models.CalendarEvent, error) {
	if err := conflict.ValidateWindow(start, end); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, actor, policy.ActionReschedule, events.EventCalendarRescheduled, func(ev *models.CalendarEvent) (bool, error) {
		if ev.Status == models.EventStatusCancelled {
			return false, apperr.Constraint("cancelled events cannot be rescheduled")
		}
		ev.StartTime, ev.EndTime = start.UTC(), end.UTC()
		ev.Status = models.EventStatusRescheduled
		return true, nil
	})
}

// CancelEvent marks the event cancelled. Cancelled events stop occupying
// their window but stay readable.
func (s *Service) CancelEvent(ctx context.Context, id, reason string, actor policy.Actor) (*models.CalendarEvent, error) {
	return s.mutate(ctx, id, actor, policy.ActionCancel, events.EventCalendarCancelled, func(ev *models.CalendarEvent) (bool, error) {
		if ev.Status == models.EventStatusCancelled {
			return false, apperr.Constraint("event is already cancelled")
		}
		now := s.now().UTC()
		ev.Status = models.EventStatusCancelled
		ev.CancelReason = reason
		ev.CancelledAt = &now
		return false, nil
	})
}

// DeleteEvent soft-deletes the event.
func (s *Service) DeleteEvent(ctx context.Context, id string, actor policy.Actor) error {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.EventResource(ev), policy.ActionDelete); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(ev).Error; err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.publish(events.EventCalendarDeleted, ev, actor.ID, nil)
	s.logger.Info().Str("event_id", id).Str("actor_id", actor.ID).Msg("event deleted")
	return nil
}

// storeError reports a write rejected by the storage overlap guard as a
// constraint violation.
func storeError(op string, err error) error {
	if db.IsCheckViolation(err) {
		return &apperr.Error{Kind: apperr.KindConstraint, Message: "event overlaps an active event of the organizer", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// mutate loads, authorizes, changes and saves one event in a transaction.
// change reports whether the window moved so conflicts must be recomputed.
func (s *Service) mutate(ctx context.Context, id string, actor policy.Actor, action policy.Action, published events.EventType, change func(*models.CalendarEvent) (bool, error)) (*models.CalendarEvent, error) {
	var ev *models.CalendarEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ev, err = loadEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.EventResource(ev), action); err != nil {
			return err
		}
		moved, err := change(ev)
		if err != nil {
			return err
		}
		if moved {
			conflicts, err := s.detect(ctx, s.finder.WithTx(tx), ev)
			if err != nil {
				return err
			}
			annotate(ev, conflicts)
		}
		if err := tx.Omit("Participants").Save(ev).Error; err != nil {
			return storeError("save event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(published, ev, actor.ID, map[string]any{"action": string(action)})
	if ev.HasConflict && (action == policy.ActionUpdate || action == policy.ActionReschedule) {
		telemetry.ConflictsDetectedTotal.WithLabelValues(string(action)).Add(float64(len(ev.Conflicts)))
		s.reportConflict(ctx, ev)
	}
	s.logger.Info().Str("event_id", ev.ID).Str("actor_id", actor.ID).Str("action", string(action)).Msg("event updated")
	return ev, nil
}

// GetUpcomingEvents returns the actor's active events starting within the
// next days days, earliest first.
func (s *Service) GetUpcomingEvents(ctx context.Context, actorID string, days int) ([]models.CalendarEvent, error) {
	if actorID == "" {
		return nil, apperr.Validation("actor_id is required")
	}
	if days <= 0 || days > MaxUpcomingDays {
		return nil, apperr.Validation("days must be between 1 and %d", MaxUpcomingDays)
	}
	now := s.now().UTC()
	until := now.AddDate(0, 0, days)

	evs, err := s.finder.ActiveEvents(ctx, actorID, now, until.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	out := make([]models.CalendarEvent, 0, len(evs))
	for _, ev := range evs {
		if ev.StartTime.Before(now) || ev.StartTime.After(until) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetConflictsFor lists the actor's active events overlapping [start, end).
func (s *Service) GetConflictsFor(ctx context.Context, actorID string, start, end time.Time, excludeEventID string) ([]models.ConflictRef, error) {
	if actorID == "" {
		return nil, apperr.Validation("actor_id is required")
	}
	conflicts, err := s.finder.Find(ctx, conflict.Query{ActorID: actorID, Start: start, End: end, ExcludeEventID: excludeEventID})
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []models.ConflictRef{}
	}
	return conflicts, nil
}

// detect runs the detector for the organizer and every participant of ev and
// merges the results.
func (s *Service) detect(ctx context.Context, finder *conflict.Finder, ev *models.CalendarEvent) ([]models.ConflictRef, error) {
	actors := []string{ev.OrganizerID}
	for _, p := range ev.Participants {
		actors = append(actors, p.ActorID)
	}

	seen := make(map[string]bool)
	var out []models.ConflictRef
	for _, actorID := range actors {
		refs, err := finder.Find(ctx, conflict.Query{ActorID: actorID, Start: ev.StartTime, End: ev.EndTime, ExcludeEventID: ev.ID})
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if seen[ref.EventID] {
				continue
			}
			seen[ref.EventID] = true
			out = append(out, ref)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func annotate(ev *models.CalendarEvent, conflicts []models.ConflictRef) {
	ev.HasConflict = len(conflicts) > 0
	ev.Conflicts = conflicts
}

func (s *Service) reportConflict(ctx context.Context, ev *models.CalendarEvent) {
	if s.bus != nil {
		s.bus.Publish(events.EventConflictDetected, events.Payload{
			"resource_type": "calendar_event",
			"resource_id":   ev.ID,
			"organizer_id":  ev.OrganizerID,
			"conflicts":     len(ev.Conflicts),
		})
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendConflictAlert(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("conflict alert failed")
	}
}

func (s *Service) publish(et events.EventType, ev *models.CalendarEvent, actorID string, extra map[string]any) {
	if s.bus == nil {
		return
	}
	payload := events.Payload{
		"actor_id":      actorID,
		"resource_type": "calendar_event",
		"resource_id":   ev.ID,
		"kind":          string(ev.EventType),
		"status":        string(ev.Status),
		"start_time":    ev.StartTime.Format(time.RFC3339),
		"end_time":      ev.EndTime.Format(time.RFC3339),
		"has_conflict":  ev.HasConflict,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Publish(et, payload)
}
