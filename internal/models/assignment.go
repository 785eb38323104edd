/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// JobType identifies the kind of delegated work.
type JobType string

const (
	JobTypeDocumentReview      JobType = "DOCUMENT_REVIEW"
	JobTypeFarmInspection      JobType = "FARM_INSPECTION"
	JobTypeVideoCallInspection JobType = "VIDEO_CALL_INSPECTION"
	JobTypeOnsiteInspection    JobType = "ONSITE_INSPECTION"
	JobTypeFinalApproval       JobType = "FINAL_APPROVAL"
	JobTypeGeneral             JobType = "GENERAL"
)

// AssignmentStatus is a state of the assignment lifecycle.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusAccepted   AssignmentStatus = "accepted"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
	AssignmentStatusCancelled  AssignmentStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusCancelled
}

// AssignmentSLA captures expected versus actual timing.
type AssignmentSLA struct {
	ExpectedDurationHours int       `json:"expected_duration_hours"`
	DueDate               time.Time `json:"due_date"`
	ActualDurationHours   float64   `json:"actual_duration_hours"`
	IsOnTime              bool      `json:"is_on_time"`
}

// CompletionEvidence is required to complete an assignment.
type CompletionEvidence struct {
	ReportRef      string `json:"report_ref" validate:"required"`
	Score          *int   `json:"score" validate:"required,min=0,max=100"`
	Recommendation string `json:"recommendation" validate:"required"`
	Summary        string `json:"summary" validate:"required"`
}

// JobAssignment is a delegated unit of work tracked against an SLA.
type JobAssignment struct {
	ID         string           `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID  string           `gorm:"type:varchar(64);not null;index" json:"subject_id"`
	AssigneeID string           `gorm:"type:varchar(64);not null;index:idx_job_assignments_assignee" json:"assignee_id"`
	Role       RoleName         `gorm:"type:varchar(32);not null" json:"role"`
	JobType    JobType          `gorm:"type:varchar(32);not null;index" json:"job_type"`
	Status     AssignmentStatus `gorm:"type:varchar(32);not null;index:idx_job_assignments_status" json:"status"`
	AssignedBy string           `gorm:"type:varchar(64);not null" json:"assigned_by"`

	AssignedAt   time.Time  `gorm:"not null" json:"assigned_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`

	ExpectedDurationHours int       `gorm:"not null" json:"expected_duration_hours"`
	DueDate               time.Time `gorm:"not null;index:idx_job_assignments_due" json:"due_date"`
	// Frozen at completion; computed on read otherwise.
	ActualDurationHours *float64 `json:"actual_duration_hours,omitempty"`
	IsOnTime            *bool    `json:"is_on_time,omitempty"`

	CompletionEvidence *CompletionEvidence `gorm:"type:text;serializer:json" json:"completion_evidence,omitempty"`
	RelatedEntities    map[string]string   `gorm:"type:text;serializer:json" json:"related_entities,omitempty"`

	EventID          *string `gorm:"type:uuid" json:"event_id,omitempty"`
	ReassignedFromID *string `gorm:"type:uuid" json:"reassigned_from_id,omitempty"`
	ReassignedToID   *string `gorm:"type:uuid" json:"reassigned_to_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (JobAssignment) TableName() string {
	return "job_assignments"
}

// AssignmentAction names a ledger entry.
type AssignmentAction string

const (
	AssignmentActionCreate   AssignmentAction = "create"
	AssignmentActionAccept   AssignmentAction = "accept"
	AssignmentActionStart    AssignmentAction = "start"
	AssignmentActionComplete AssignmentAction = "complete"
	AssignmentActionCancel   AssignmentAction = "cancel"
	AssignmentActionReassign AssignmentAction = "reassign"
)

// AssignmentHistory is one append-only ledger row.
type AssignmentHistory struct {
	ID           string           `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID string           `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_history_seq" json:"assignment_id"`
	Sequence     int              `gorm:"not null;uniqueIndex:idx_assignment_history_seq" json:"sequence"`
	ActorID      string           `gorm:"type:varchar(64);not null" json:"actor_id"`
	Action       AssignmentAction `gorm:"type:varchar(32);not null" json:"action"`
	FromStatus   AssignmentStatus `gorm:"type:varchar(32)" json:"from_status,omitempty"`
	ToStatus     AssignmentStatus `gorm:"type:varchar(32);not null" json:"to_status"`
	Note         string           `gorm:"type:text" json:"note,omitempty"`
	Timestamp    time.Time        `gorm:"not null" json:"timestamp"`
}

// TableName returns the table name for GORM.
func (AssignmentHistory) TableName() string {
	return "assignment_history"
}

// AssignmentComment is a free-text note on an assignment.
type AssignmentComment struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID string    `gorm:"type:uuid;not null;index" json:"assignment_id"`
	AuthorID     string    `gorm:"type:varchar(64);not null" json:"author_id"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AssignmentComment) TableName() string {
	return "assignment_comments"
}

// AssignmentAttachment references a file held by the document store.
type AssignmentAttachment struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID string    `gorm:"type:uuid;not null;index" json:"assignment_id"`
	Type         string    `gorm:"type:varchar(64);not null" json:"type"`
	FileRef      string    `gorm:"type:varchar(512);not null" json:"file_ref"`
	UploadedBy   string    `gorm:"type:varchar(64);not null" json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AssignmentAttachment) TableName() string {
	return "assignment_attachments"
}
