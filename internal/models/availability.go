/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// WorkingHours is a recurring weekly window.
type WorkingHours struct {
	DayOfWeek   int    `json:"day_of_week" validate:"min=0,max=6"` // 0=Sunday, 6=Saturday
	StartTime   string `json:"start_time" validate:"required,hhmm"`  // HH:MM
	EndTime     string `json:"end_time" validate:"required,hhmm"`    // HH:MM, 24:00 allowed
	IsAvailable bool   `json:"is_available"`
}

// CustomAvailability overrides the weekly windows for one calendar date.
type CustomAvailability struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required,hhmm"`
	EndTime     string `json:"end_time" validate:"required,hhmm"`
	IsAvailable bool   `json:"is_available"`
}

// TimeOff blocks every day it touches.
type TimeOff struct {
	Start  time.Time `json:"start" validate:"required"`
	End    time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason string    `json:"reason,omitempty"`
}

// BookingConstraints bound how an actor can be booked.
type BookingConstraints struct {
	MaxDailyBookings          int `json:"max_daily_bookings" validate:"min=0"` // 0 = unlimited
	MinBookingDurationMinutes int `json:"min_booking_duration_minutes" validate:"min=0"`
	AdvanceBookingDays        int `json:"advance_booking_days" validate:"min=0"`
	InterBookingBufferMinutes int `json:"inter_booking_buffer_minutes" validate:"min=0"`
}

// MinBookingDuration returns the minimum slot length.
func (c BookingConstraints) MinBookingDuration() time.Duration {
	return time.Duration(c.MinBookingDurationMinutes) * time.Minute
}

// InterBookingBuffer returns the gap kept next to existing bookings.
func (c BookingConstraints) InterBookingBuffer() time.Duration {
	return time.Duration(c.InterBookingBufferMinutes) * time.Minute
}

// AvailabilityPreferences holds actor-level booking preferences.
type AvailabilityPreferences struct {
	AutoAcceptWithConflict bool `json:"auto_accept_with_conflict"`
}

// ActorAvailability is the booking profile of a single actor.
type ActorAvailability struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"actor_id"`
	Timezone string `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`

	WorkingHours       []WorkingHours          `gorm:"type:text;serializer:json" json:"working_hours" validate:"dive"`
	CustomAvailability []CustomAvailability    `gorm:"type:text;serializer:json" json:"custom_availability,omitempty" validate:"dive"`
	TimeOff            []TimeOff               `gorm:"type:text;serializer:json" json:"time_off,omitempty" validate:"dive"`
	Constraints        BookingConstraints      `gorm:"type:text;serializer:json" json:"constraints"`
	Preferences        AvailabilityPreferences `gorm:"type:text;serializer:json" json:"preferences"`

	IsActive bool `gorm:"not null" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ActorAvailability) TableName() string {
	return "actor_availability"
}

// Location resolves the actor's timezone, falling back to UTC.
func (a ActorAvailability) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
