/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/models"
)

// actions maps bus events onto audit actions. Events without an entry are not audited.
var actions = map[events.EventType]models.AuditAction{
	events.EventCalendarCreated:      models.AuditActionEventCreate,
	events.EventCalendarUpdated:      models.AuditActionEventUpdate,
	events.EventCalendarConfirmed:    models.AuditActionEventConfirm,
	events.EventCalendarRescheduled:  models.AuditActionEventReschedule,
	events.EventCalendarCancelled:    models.AuditActionEventCancel,
	events.EventCalendarDeleted:      models.AuditActionEventDelete,
	events.EventBookingCreated:       models.AuditActionBookingCreate,
	events.EventBookingRejected:      models.AuditActionBookingReject,
	events.EventAvailabilityUpdated:  models.AuditActionAvailabilityUpdate,
	events.EventAssignmentTransition: models.AuditActionAssignmentTransition,
	events.EventSLABreached:          models.AuditActionSLABreach,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to audited events and stores them until ctx is done.
func (s *Service) Start(ctx context.Context) {
	types := make([]events.EventType, 0, len(actions))
	for et := range actions {
		types = append(types, et)
	}
	sub := s.bus.Subscribe(types...)
	defer s.bus.Unsubscribe(sub)

	s.logger.Info().Int("event_types", len(types)).Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			action, known := actions[payload.Type()]
			if !known {
				continue
			}
			s.logAuditEntry(ctx, action, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if actorID, ok := payload["actor_id"].(string); ok && actorID != "" {
		entry.ActorID = &actorID
	}
	if resourceType, ok := payload["resource_type"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	}
	if ipAddress, ok := payload["ip_address"].(string); ok {
		entry.IPAddress = ipAddress
	}

	for k, v := range payload {
		switch k {
		case "actor_id", "resource_type", "resource_id", "ip_address", events.KeyEventType:
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ActorID    *string
	ResourceID *string
	Action     *models.AuditAction
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime.UTC())
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
