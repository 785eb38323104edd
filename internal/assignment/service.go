/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package assignment runs the job assignment state machine and keeps its
// append-only history.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/policy"
	"github.com/friendsincode/inspectd/internal/sla"
	"github.com/friendsincode/inspectd/internal/telemetry"
	"github.com/friendsincode/inspectd/internal/validation"
)

// Notifier tells an assignee about new work. Failures are logged only.
type Notifier interface {
	SendNewAssignment(ctx context.Context, a *models.JobAssignment) error
}

// Service owns job assignments.
type Service struct {
	db       *gorm.DB
	table    *sla.Table
	bus      *events.Bus
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates an assignment service. bus and notifier may be nil.
func NewService(db *gorm.DB, table *sla.Table, bus *events.Bus, notifier Notifier, logger zerolog.Logger) *Service {
	if table == nil {
		table = sla.DefaultTable()
	}
	return &Service{
		db:       db,
		table:    table,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With().Str("component", "assignment").Logger(),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput describes new work for an assignee.
type CreateInput struct {
	SubjectID       string            `json:"subject_id" validate:"required,max=64"`
	AssigneeID      string            `json:"assignee_id" validate:"required,max=64"`
	JobType         models.JobType    `json:"job_type" validate:"required,max=32"`
	Role            models.RoleName   `json:"role,omitempty" validate:"max=32"`
	EventID         *string           `json:"event_id,omitempty" validate:"omitempty,uuid"`
	RelatedEntities map[string]string `json:"related_entities,omitempty"`
}

// AttachmentInput references an uploaded document.
type AttachmentInput struct {
	Type    string `json:"type" validate:"required,max=64"`
	FileRef string `json:"file_ref" validate:"required,max=512"`
}

// Create assigns new work. Only elevated roles may assign. The due date and
// default role come from the SLA table.
func (s *Service) Create(ctx context.Context, in CreateInput, actor policy.Actor) (a *models.JobAssignment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Create", attribute.String("job_type", string(in.JobType)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.Resource{Kind: policy.ResourceAssignment}, policy.ActionCreate); err != nil {
		return nil, err
	}

	a = s.newAssignment(in, actor.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return appendHistory(tx, a.ID, actor.ID, models.AssignmentActionCreate, "", a.Status, "", a.AssignedAt)
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, a, actor.ID, models.AssignmentActionCreate, "")
	s.notifyNew(ctx, a)
	return a, nil
}

func (s *Service) newAssignment(in CreateInput, assignedBy string) *models.JobAssignment {
	rule := s.table.Rule(in.JobType)
	role := models.NormalizeRole(in.Role)
	if role == "" {
		role = rule.DefaultRole
	}
	now := s.now().UTC()
	return &models.JobAssignment{
		ID:                    uuid.NewString(),
		SubjectID:             in.SubjectID,
		AssigneeID:            in.AssigneeID,
		Role:                  role,
		JobType:               in.JobType,
		Status:                models.AssignmentStatusAssigned,
		AssignedBy:            assignedBy,
		AssignedAt:            now,
		ExpectedDurationHours: rule.ExpectedDurationHours,
		DueDate:               s.table.DueDate(in.JobType, now),
		EventID:               in.EventID,
		RelatedEntities:       in.RelatedEntities,
	}
}

// Get returns an assignment.
func (s *Service) Get(ctx context.Context, id string) (*models.JobAssignment, error) {
	return loadAssignment(ctx, s.db, id)
}

// View returns an assignment the actor is allowed to see.
func (s *Service) View(ctx context.Context, id string, actor policy.Actor) (*models.JobAssignment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.AssignmentResource(a), policy.ActionView); err != nil {
		return nil, err
	}
	return a, nil
}

// SLA returns the assignment's current SLA figures.
func (s *Service) SLA(a *models.JobAssignment) models.AssignmentSLA {
	return sla.Calculate(a, s.now().UTC())
}

func loadAssignment(ctx context.Context, db *gorm.DB, id string) (*models.JobAssignment, error) {
	var a models.JobAssignment
	err := db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("assignment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	return &a, nil
}

// Accept moves an assigned job to accepted.
func (s *Service) Accept(ctx context.Context, id string, actor policy.Actor) (*models.JobAssignment, error) {
	return s.transition(ctx, id, actor, models.AssignmentActionAccept, "", func(a *models.JobAssignment, now time.Time) (models.JobAssignment, error) {
		if a.Status != models.AssignmentStatusAssigned {
			return models.JobAssignment{}, invalidTransition(models.AssignmentActionAccept, a.Status)
		}
		return models.JobAssignment{Status: models.AssignmentStatusAccepted, AcceptedAt: &now}, nil
	})
}

// Start moves an accepted job to in progress.
func (s *Service) Start(ctx context.Context, id string, actor policy.Actor) (*models.JobAssignment, error) {
	return s.transition(ctx, id, actor, models.AssignmentActionStart, "", func(a *models.JobAssignment, now time.Time) (models.JobAssignment, error) {
		if a.Status != models.AssignmentStatusAccepted {
			return models.JobAssignment{}, invalidTransition(models.AssignmentActionStart, a.Status)
		}
		return models.JobAssignment{Status: models.AssignmentStatusInProgress, StartedAt: &now}, nil
	})
}

// Complete closes an in-progress job. Every evidence field is required;
// incomplete evidence leaves the assignment untouched.
func (s *Service) Complete(ctx context.Context, id string, evidence models.CompletionEvidence, actor policy.Actor) (*models.JobAssignment, error) {
	if err := validation.Struct(evidence); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actor, models.AssignmentActionComplete, "", func(a *models.JobAssignment, now time.Time) (models.JobAssignment, error) {
		if a.Status != models.AssignmentStatusInProgress {
			return models.JobAssignment{}, invalidTransition(models.AssignmentActionComplete, a.Status)
		}
		actual := now.Sub(a.AssignedAt).Hours()
		onTime := actual <= float64(a.ExpectedDurationHours)
		ev := evidence
		return models.JobAssignment{
			Status:              models.AssignmentStatusCompleted,
			CompletedAt:         &now,
			CompletionEvidence:  &ev,
			ActualDurationHours: &actual,
			IsOnTime:            &onTime,
		}, nil
	})
}

// Cancel closes an open job without completing it.
func (s *Service) Cancel(ctx context.Context, id, reason string, actor policy.Actor) (*models.JobAssignment, error) {
	return s.transition(ctx, id, actor, models.AssignmentActionCancel, reason, func(a *models.JobAssignment, now time.Time) (models.JobAssignment, error) {
		if a.Status.Terminal() {
			return models.JobAssignment{}, invalidTransition(models.AssignmentActionCancel, a.Status)
		}
		return models.JobAssignment{Status: models.AssignmentStatusCancelled, CancelledAt: &now, CancelReason: reason}, nil
	})
}

// Reassign hands an open job to another assignee. The original is cancelled
// and linked to a fresh assignment with a new SLA window, which is returned.
func (s *Service) Reassign(ctx context.Context, id, newAssigneeID, reason string, actor policy.Actor) (created *models.JobAssignment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Reassign", attribute.String("assignment_id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if newAssigneeID == "" {
		return nil, apperr.Validation("new assignee is required")
	}

	var original *models.JobAssignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		original, err = loadAssignment(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.AssignmentResource(original), policy.ActionReassign); err != nil {
			return err
		}
		if original.Status.Terminal() {
			return invalidTransition(models.AssignmentActionReassign, original.Status)
		}
		if original.AssigneeID == newAssigneeID {
			return apperr.Validation("assignment is already held by %s", newAssigneeID)
		}

		created = s.newAssignment(CreateInput{
			SubjectID:       original.SubjectID,
			AssigneeID:      newAssigneeID,
			JobType:         original.JobType,
			Role:            original.Role,
			EventID:         original.EventID,
			RelatedEntities: original.RelatedEntities,
		}, actor.ID)
		created.ReassignedFromID = &original.ID
		if err := tx.Create(created).Error; err != nil {
			return fmt.Errorf("create reassigned assignment: %w", err)
		}

		now := created.AssignedAt
		note := "reassigned to " + newAssigneeID
		if reason != "" {
			note += ": " + reason
		}
		from := original.Status
		if err := compareAndSwap(tx, original.ID, from, models.JobAssignment{
			Status:         models.AssignmentStatusCancelled,
			CancelledAt:    &now,
			CancelReason:   note,
			ReassignedToID: &created.ID,
		}); err != nil {
			return err
		}
		if err := appendHistory(tx, original.ID, actor.ID, models.AssignmentActionReassign, from, models.AssignmentStatusCancelled, note, now); err != nil {
			return err
		}
		if err := appendHistory(tx, created.ID, actor.ID, models.AssignmentActionCreate, "", created.Status, "reassigned from "+original.ID, now); err != nil {
			return err
		}
		original, err = loadAssignment(ctx, tx, original.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, original, actor.ID, models.AssignmentActionReassign, reason)
	s.afterTransition(ctx, created, actor.ID, models.AssignmentActionCreate, "")
	s.notifyNew(ctx, created)
	return created, nil
}

// change computes the columns to write for a transition from a's current status.
type change func(a *models.JobAssignment, now time.Time) (models.JobAssignment, error)

// transition authorizes and applies one state change together with its
// history row. Rejected attempts leave no trace.
func (s *Service) transition(ctx context.Context, id string, actor policy.Actor, action models.AssignmentAction, note string, fn change) (a *models.JobAssignment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "assignment.Transition",
		attribute.String("assignment_id", id),
		attribute.String("action", string(action)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadAssignment(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.AssignmentResource(current), policy.Action(action)); err != nil {
			return err
		}
		now := s.now().UTC()
		updates, err := fn(current, now)
		if err != nil {
			return err
		}
		if err := compareAndSwap(tx, current.ID, current.Status, updates); err != nil {
			return err
		}
		if err := appendHistory(tx, current.ID, actor.ID, action, current.Status, updates.Status, note, now); err != nil {
			return err
		}
		a, err = loadAssignment(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, a, actor.ID, action, note)
	return a, nil
}

// compareAndSwap writes updates only if the row is still in status from.
func compareAndSwap(tx *gorm.DB, id string, from models.AssignmentStatus, updates models.JobAssignment) error {
	res := tx.Model(&models.JobAssignment{ID: id}).Where("status = ?", from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update assignment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Constraint("assignment %s changed concurrently; retry", id)
	}
	return nil
}

func invalidTransition(action models.AssignmentAction, status models.AssignmentStatus) error {
	return apperr.Constraint("cannot %s an assignment in status %s", action, status)
}

func (s *Service) afterTransition(ctx context.Context, a *models.JobAssignment, actorID string, action models.AssignmentAction, note string) {
	telemetry.AssignmentTransitionsTotal.WithLabelValues(string(action)).Inc()
	if s.bus != nil {
		s.bus.Publish(events.EventAssignmentTransition, events.Payload{
			"actor_id":      actorID,
			"resource_type": "job_assignment",
			"resource_id":   a.ID,
			"action":        string(action),
			"status":        string(a.Status),
			"assignee_id":   a.AssigneeID,
			"job_type":      string(a.JobType),
			"note":          note,
		})
	}
	s.logger.Info().
		Str("assignment_id", a.ID).
		Str("actor_id", actorID).
		Str("action", string(action)).
		Str("status", string(a.Status)).
		Msg("assignment transition")
}

func (s *Service) notifyNew(ctx context.Context, a *models.JobAssignment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendNewAssignment(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("assignment_id", a.ID).Msg("new assignment notification failed")
	}
}
