/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package conflict finds calendar events whose time windows overlap a
// candidate window. Overlap is half-open: touching windows do not conflict.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/models"
	"gorm.io/gorm"
)

// Query describes a candidate window for one actor.
type Query struct {
	ActorID        string
	Start          time.Time
	End            time.Time
	ExcludeEventID string
}

// ValidateWindow rejects zero-length and inverted windows.
func ValidateWindow(start, end time.Time) error {
	if !end.After(start) {
		return apperr.Validation("end time must be after start time")
	}
	return nil
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapMinutes returns the whole minutes shared by both windows.
func OverlapMinutes(aStart, aEnd, bStart, bEnd time.Time) int {
	if !Overlaps(aStart, aEnd, bStart, bEnd) {
		return 0
	}
	return int(minTime(aEnd, bEnd).Sub(maxTime(aStart, bStart)) / time.Minute)
}

// Detect returns annotations for every active event in events that overlaps
// the query window. Events not involving q.ActorID are ignored.
func Detect(q Query, events []models.CalendarEvent) []models.ConflictRef {
	var out []models.ConflictRef
	for _, ev := range events {
		if ev.ID == q.ExcludeEventID || !ev.IsActive() || !ev.HasParticipant(q.ActorID) {
			continue
		}
		if !Overlaps(q.Start, q.End, ev.StartTime, ev.EndTime) {
			continue
		}
		out = append(out, models.ConflictRef{
			EventID:        ev.ID,
			Title:          ev.Title,
			StartTime:      ev.StartTime,
			EndTime:        ev.EndTime,
			OverlapMinutes: OverlapMinutes(q.Start, q.End, ev.StartTime, ev.EndTime),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Finder loads an actor's events from the database.
type Finder struct {
	db *gorm.DB
}

// NewFinder creates a Finder over db.
func NewFinder(db *gorm.DB) *Finder {
	return &Finder{db: db}
}

// WithTx returns a Finder that reads through tx.
func (f *Finder) WithTx(tx *gorm.DB) *Finder {
	return &Finder{db: tx}
}

// ActiveEvents returns the actor's non-cancelled, non-deleted events (as
// organizer or participant) intersecting [from, to), ordered by start time.
func (f *Finder) ActiveEvents(ctx context.Context, actorID string, from, to time.Time) ([]models.CalendarEvent, error) {
	participating := f.db.Model(&models.EventParticipant{}).Select("event_id").Where("actor_id = ?", actorID)

	var events []models.CalendarEvent
	err := f.db.WithContext(ctx).
		Preload("Participants").
		Where("status <> ?", models.EventStatusCancelled).
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC()).
		Where(f.db.Where("organizer_id = ?", actorID).Or("id IN (?)", participating)).
		Order("start_time ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("load events for actor %s: %w", actorID, err)
	}
	return events, nil
}

// Find validates the window and returns the actor's conflicting events.
func (f *Finder) Find(ctx context.Context, q Query) ([]models.ConflictRef, error) {
	if err := ValidateWindow(q.Start, q.End); err != nil {
		return nil, err
	}
	events, err := f.ActiveEvents(ctx, q.ActorID, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return Detect(q, events), nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
