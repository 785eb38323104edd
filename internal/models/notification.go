/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// NotificationType defines the type of notification.
type NotificationType string

const (
	NotificationTypeBookingConfirmation NotificationType = "booking_confirmation"
	NotificationTypeConflictAlert       NotificationType = "conflict_alert"
	NotificationTypeNewAssignment       NotificationType = "new_assignment"
	NotificationTypeSLANearDeadline     NotificationType = "sla_near_deadline"
	NotificationTypeSLABreached         NotificationType = "sla_breached"
)

// NotificationChannel defines the delivery channel.
type NotificationChannel string

const (
	NotificationChannelInApp  NotificationChannel = "in_app"
	NotificationChannelBroker NotificationChannel = "broker" // handed to the external delivery service
)

// NotificationStatus defines the delivery status.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification stores a notification log entry. Delivery to email or push is
// owned by a downstream service consuming the published message.
type Notification struct {
	ID               string              `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID      string              `gorm:"type:varchar(64);index:idx_notifications_recipient;not null" json:"recipient_id"`
	NotificationType NotificationType    `gorm:"type:varchar(64);index:idx_notifications_type;not null" json:"notification_type"`
	Channel          NotificationChannel `gorm:"type:varchar(32);not null" json:"channel"`
	Subject          string              `gorm:"type:varchar(255)" json:"subject,omitempty"`
	Body             string              `gorm:"type:text;not null" json:"body"`
	Status           NotificationStatus  `gorm:"type:varchar(32);not null;default:'pending';index:idx_notifications_status" json:"status"`
	SentAt           *time.Time          `json:"sent_at,omitempty"`
	Error            string              `gorm:"type:text" json:"error,omitempty"`

	// Reference to related entity (calendar event, assignment)
	ReferenceType string `gorm:"type:varchar(64)" json:"reference_type,omitempty"`
	ReferenceID   string `gorm:"type:varchar(64)" json:"reference_id,omitempty"`

	Metadata map[string]any `gorm:"type:text;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
