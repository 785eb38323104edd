/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

const (
	AuditActionEventCreate          AuditAction = "event.create"
	AuditActionEventUpdate          AuditAction = "event.update"
	AuditActionEventConfirm         AuditAction = "event.confirm"
	AuditActionEventReschedule      AuditAction = "event.reschedule"
	AuditActionEventCancel          AuditAction = "event.cancel"
	AuditActionEventDelete          AuditAction = "event.delete"
	AuditActionBookingCreate        AuditAction = "booking.create"
	AuditActionBookingReject        AuditAction = "booking.reject"
	AuditActionAvailabilityUpdate   AuditAction = "availability.update"
	AuditActionAssignmentTransition AuditAction = "assignment.transition"
	AuditActionSLABreach            AuditAction = "sla.breach"
)

// AuditLog records sensitive operations for compliance review.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	ActorID      *string        `gorm:"type:varchar(64);index:idx_audit_actor"` // NULL for system actions
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "calendar_event", "job_assignment", ...
	ResourceID   string         `gorm:"type:varchar(64);index:idx_audit_resource"`
	Details      map[string]any `gorm:"type:text;serializer:json"`
	IPAddress    string         `gorm:"type:varchar(45)"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
