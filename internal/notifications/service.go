/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications records notifications for actors and hands them to
// the external delivery service through the event bus.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

const timeLayout = "Mon 2 Jan 2006 15:04 MST"

// Service creates notification records and publishes them.
type Service struct {
	db      *gorm.DB
	bus     *events.Bus
	channel models.NotificationChannel
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a notification service. Notifications use the broker
// channel when an external broker forwards the bus, in-app otherwise.
func NewService(db *gorm.DB, bus *events.Bus, channel models.NotificationChannel, logger zerolog.Logger) *Service {
	if channel == "" {
		channel = models.NotificationChannelInApp
	}
	return &Service{
		db:      db,
		bus:     bus,
		channel: channel,
		logger:  logger.With().Str("component", "notifications").Logger(),
		now:     time.Now,
	}
}

// SendBookingConfirmation notifies the organizer and participants of a new booking.
func (s *Service) SendBookingConfirmation(ctx context.Context, ev *models.CalendarEvent) error {
	body := fmt.Sprintf("%s is booked from %s to %s.",
		ev.Title, ev.StartTime.UTC().Format(timeLayout), ev.EndTime.UTC().Format(timeLayout))
	if ev.HasConflict {
		body += fmt.Sprintf(" It overlaps %d other event(s).", len(ev.Conflicts))
	}
	return s.sendAll(ctx, eventRecipients(ev), &models.Notification{
		NotificationType: models.NotificationTypeBookingConfirmation,
		Subject:          "Booking confirmed: " + ev.Title,
		Body:             body,
		ReferenceType:    "calendar_event",
		ReferenceID:      ev.ID,
		Metadata: map[string]any{
			"start_time": ev.StartTime.UTC().Format(time.RFC3339),
			"end_time":   ev.EndTime.UTC().Format(time.RFC3339),
			"subjects":   ev.RelatedEntities,
		},
	})
}

// SendConflictAlert tells the organizer which events the new window overlaps.
func (s *Service) SendConflictAlert(ctx context.Context, ev *models.CalendarEvent) error {
	var lines []string
	ids := make([]string, 0, len(ev.Conflicts))
	for _, c := range ev.Conflicts {
		lines = append(lines, fmt.Sprintf("- %s (%s, %d min overlap)", c.Title, c.StartTime.UTC().Format(timeLayout), c.OverlapMinutes))
		ids = append(ids, c.EventID)
	}
	return s.sendAll(ctx, []string{ev.OrganizerID}, &models.Notification{
		NotificationType: models.NotificationTypeConflictAlert,
		Subject:          "Scheduling conflict: " + ev.Title,
		Body:             fmt.Sprintf("%s overlaps:\n%s", ev.Title, strings.Join(lines, "\n")),
		ReferenceType:    "calendar_event",
		ReferenceID:      ev.ID,
		Metadata:         map[string]any{"conflicting_event_ids": ids},
	})
}

// SendNewAssignment tells the assignee about new work.
func (s *Service) SendNewAssignment(ctx context.Context, a *models.JobAssignment) error {
	return s.sendAll(ctx, []string{a.AssigneeID}, &models.Notification{
		NotificationType: models.NotificationTypeNewAssignment,
		Subject:          fmt.Sprintf("New %s assignment", a.JobType),
		Body: fmt.Sprintf("You have been assigned %s for %s. It is due %s.",
			a.JobType, a.SubjectID, a.DueDate.UTC().Format(timeLayout)),
		ReferenceType: "job_assignment",
		ReferenceID:   a.ID,
		Metadata:      map[string]any{"assigned_by": a.AssignedBy, "due_date": a.DueDate.UTC().Format(time.RFC3339)},
	})
}

// SendSLAAlert warns about an approaching or missed due date. Each assignment
// is alerted at most once per kind; breaches also go to the assigner.
func (s *Service) SendSLAAlert(ctx context.Context, a *models.JobAssignment, breached bool) error {
	kind := models.NotificationTypeSLANearDeadline
	subject := fmt.Sprintf("%s due soon", a.JobType)
	body := fmt.Sprintf("Assignment %s for %s is due %s.", a.ID, a.SubjectID, a.DueDate.UTC().Format(timeLayout))
	recipients := []string{a.AssigneeID}
	if breached {
		kind = models.NotificationTypeSLABreached
		subject = fmt.Sprintf("%s overdue", a.JobType)
		body = fmt.Sprintf("Assignment %s for %s was due %s.", a.ID, a.SubjectID, a.DueDate.UTC().Format(timeLayout))
		if a.AssignedBy != "" && a.AssignedBy != a.AssigneeID {
			recipients = append(recipients, a.AssignedBy)
		}
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("reference_type = ? AND reference_id = ? AND notification_type = ?", "job_assignment", a.ID, kind).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("check previous sla alerts: %w", err)
	}
	if existing > 0 {
		return nil
	}

	return s.sendAll(ctx, recipients, &models.Notification{
		NotificationType: kind,
		Subject:          subject,
		Body:             body,
		ReferenceType:    "job_assignment",
		ReferenceID:      a.ID,
		Metadata:         map[string]any{"due_date": a.DueDate.UTC().Format(time.RFC3339), "job_type": string(a.JobType)},
	})
}

// sendAll sends a copy of template to every distinct recipient and returns
// the first error.
func (s *Service) sendAll(ctx context.Context, recipients []string, template *models.Notification) error {
	var firstErr error
	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		n := *template
		n.RecipientID = r
		if err := s.Send(ctx, &n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Send stores the notification and hands it to delivery.
func (s *Service) Send(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}
	if notification.Channel == "" {
		notification.Channel = s.channel
	}
	notification.Status = models.NotificationStatusPending

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		telemetry.NotificationFailuresTotal.WithLabelValues(string(notification.NotificationType)).Inc()
		s.logger.Error().Err(err).Str("id", notification.ID).Msg("failed to save notification")
		return fmt.Errorf("save notification: %w", err)
	}

	var err error
	switch notification.Channel {
	case models.NotificationChannelInApp:
		// stored rows are the in-app inbox
	case models.NotificationChannelBroker:
		if s.bus == nil {
			err = fmt.Errorf("no event bus configured for broker delivery")
			break
		}
		s.bus.Publish(events.EventNotification, events.Payload{
			"notification_id":   notification.ID,
			"recipient_id":      notification.RecipientID,
			"notification_type": string(notification.NotificationType),
			"subject":           notification.Subject,
			"body":              notification.Body,
			"reference_type":    notification.ReferenceType,
			"reference_id":      notification.ReferenceID,
			"metadata":          notification.Metadata,
		})
	default:
		err = fmt.Errorf("unknown notification channel: %s", notification.Channel)
	}

	if err != nil {
		notification.Status = models.NotificationStatusFailed
		notification.Error = err.Error()
		telemetry.NotificationFailuresTotal.WithLabelValues(string(notification.NotificationType)).Inc()
		s.logger.Error().Err(err).
			Str("id", notification.ID).
			Str("channel", string(notification.Channel)).
			Msg("failed to send notification")
	} else {
		now := s.now().UTC()
		notification.Status = models.NotificationStatusSent
		notification.SentAt = &now
	}

	if uerr := s.db.WithContext(ctx).Model(notification).Updates(map[string]any{
		"status":  notification.Status,
		"sent_at": notification.SentAt,
		"error":   notification.Error,
	}).Error; uerr != nil && err == nil {
		err = fmt.Errorf("update notification status: %w", uerr)
	}
	return err
}

// ListForRecipient returns the recipient's notifications, newest first.
func (s *Service) ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func eventRecipients(ev *models.CalendarEvent) []string {
	out := []string{ev.OrganizerID}
	for _, p := range ev.Participants {
		out = append(out, p.ActorID)
	}
	return out
}
