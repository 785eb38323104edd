/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// EventType classifies a calendar event.
type EventType string

const (
	EventTypeInspection EventType = "INSPECTION"
	EventTypeMeeting    EventType = "MEETING"
	EventTypeOther      EventType = "OTHER"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeInspection, EventTypeMeeting, EventTypeOther:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of a calendar event.
type EventStatus string

const (
	EventStatusScheduled   EventStatus = "SCHEDULED"
	EventStatusConfirmed   EventStatus = "CONFIRMED"
	EventStatusCancelled   EventStatus = "CANCELLED"
	EventStatusRescheduled EventStatus = "RESCHEDULED"
)

// ConflictRef annotates an event with another event it overlaps.
type ConflictRef struct {
	EventID        string    `json:"event_id"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	OverlapMinutes int       `json:"overlap_minutes"`
}

// CalendarEvent is a booked time window owned by an organizer.
type CalendarEvent struct {
	ID        string      `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string      `gorm:"type:varchar(255);not null" json:"title"`
	EventType EventType   `gorm:"type:varchar(32);not null;index:idx_calendar_events_type" json:"event_type"`
	StartTime time.Time   `gorm:"not null;index:idx_calendar_events_window" json:"start_time"`
	EndTime   time.Time   `gorm:"not null;index:idx_calendar_events_window" json:"end_time"`
	Status    EventStatus `gorm:"type:varchar(32);not null;default:'SCHEDULED';index" json:"status"`

	OrganizerID   string   `gorm:"type:varchar(64);not null;index:idx_calendar_events_organizer" json:"organizer_id"`
	OrganizerRole RoleName `gorm:"type:varchar(32)" json:"organizer_role"`

	Participants []EventParticipant `gorm:"foreignKey:EventID" json:"participants,omitempty"`

	HasConflict bool          `gorm:"not null;default:false" json:"has_conflict"`
	Conflicts   []ConflictRef `gorm:"type:text;serializer:json" json:"conflicts,omitempty"`

	// Opaque references to records owned elsewhere (application, farm, ...).
	RelatedEntities map[string]string `gorm:"type:text;serializer:json" json:"related_entities,omitempty"`

	CancelReason string     `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for GORM.
func (CalendarEvent) TableName() string {
	return "calendar_events"
}

// IsActive reports whether the event still occupies its window.
func (e CalendarEvent) IsActive() bool {
	return e.Status != EventStatusCancelled && !e.DeletedAt.Valid
}

// HasParticipant reports whether actorID is the organizer or a named participant.
func (e CalendarEvent) HasParticipant(actorID string) bool {
	if e.OrganizerID == actorID {
		return true
	}
	for _, p := range e.Participants {
		if p.ActorID == actorID {
			return true
		}
	}
	return false
}

// EventParticipant names an actor invited to an event.
type EventParticipant struct {
	ID      string   `gorm:"type:uuid;primaryKey" json:"id"`
	EventID string   `gorm:"type:uuid;not null;uniqueIndex:idx_event_participant" json:"event_id"`
	ActorID string   `gorm:"type:varchar(64);not null;uniqueIndex:idx_event_participant;index" json:"actor_id"`
	Role    RoleName `gorm:"type:varchar(32)" json:"role,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (EventParticipant) TableName() string {
	return "event_participants"
}
