/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/policy"
	"github.com/friendsincode/inspectd/internal/validation"
)

const maxCommentLength = 4000

// appendHistory is the only writer of assignment_history. Rows are numbered
// per assignment; callers run it in the transaction that changed the status.
func appendHistory(tx *gorm.DB, assignmentID, actorID string, action models.AssignmentAction, from, to models.AssignmentStatus, note string, at time.Time) error {
	var last int
	if err := tx.Model(&models.AssignmentHistory{}).
		Where("assignment_id = ?", assignmentID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error; err != nil {
		return fmt.Errorf("read history sequence: %w", err)
	}
	entry := models.AssignmentHistory{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Sequence:     last + 1,
		ActorID:      actorID,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		Note:         note,
		Timestamp:    at.UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetHistory returns the assignment's ledger, oldest first.
func (s *Service) GetHistory(ctx context.Context, id string, actor policy.Actor) ([]models.AssignmentHistory, error) {
	if _, err := s.View(ctx, id, actor); err != nil {
		return nil, err
	}
	var out []models.AssignmentHistory
	if err := s.db.WithContext(ctx).
		Where("assignment_id = ?", id).
		Order("sequence ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// AddComment appends a comment from the assignee, the assigner or an elevated role.
func (s *Service) AddComment(ctx context.Context, id, message string, actor policy.Actor) (*models.AssignmentComment, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}
	if len(message) > maxCommentLength {
		return nil, apperr.Validation("message must be at most %d characters", maxCommentLength)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.AssignmentResource(a), policy.ActionComment); err != nil {
		return nil, err
	}

	c := &models.AssignmentComment{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		AuthorID:     actor.ID,
		Message:      message,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}

// AddAttachment records a document reference on the assignment.
func (s *Service) AddAttachment(ctx context.Context, id string, in AttachmentInput, actor policy.Actor) (*models.AssignmentAttachment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.AssignmentResource(a), policy.ActionAttach); err != nil {
		return nil, err
	}

	att := &models.AssignmentAttachment{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		Type:         in.Type,
		FileRef:      in.FileRef,
		UploadedBy:   actor.ID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(att).Error; err != nil {
		return nil, fmt.Errorf("add attachment: %w", err)
	}
	return att, nil
}

// Comments lists the assignment's comments, oldest first.
func (s *Service) Comments(ctx context.Context, id string, actor policy.Actor) ([]models.AssignmentComment, error) {
	if _, err := s.View(ctx, id, actor); err != nil {
		return nil, err
	}
	var out []models.AssignmentComment
	if err := s.db.WithContext(ctx).Where("assignment_id = ?", id).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	return out, nil
}

// Attachments lists the assignment's attachments, oldest first.
func (s *Service) Attachments(ctx context.Context, id string, actor policy.Actor) ([]models.AssignmentAttachment, error) {
	if _, err := s.View(ctx, id, actor); err != nil {
		return nil, err
	}
	var out []models.AssignmentAttachment
	if err := s.db.WithContext(ctx).Where("assignment_id = ?", id).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	return out, nil
}
