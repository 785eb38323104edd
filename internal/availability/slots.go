/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package availability

import (
	"sort"
	"time"

	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/validation"
)

const dateLayout = "2006-01-02"

// Slot is a contiguous free interval inside one day's availability window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the slot length.
func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

type interval struct {
	start, end time.Time
}

// GenerateSlots lists free intervals of at least max(duration,
// minBookingDuration) for every calendar day from..to (inclusive, read as
// dates in the actor's timezone). events must hold the actor's active events
// around the range; inactive ones are ignored.
func GenerateSlots(a *models.ActorAvailability, events []models.CalendarEvent, from, to time.Time, duration time.Duration) []Slot {
	if a == nil || !a.IsActive {
		return []Slot{}
	}
	loc := a.Location()
	minLen := duration
	if d := a.Constraints.MinBookingDuration(); d > minLen {
		minLen = d
	}
	buffer := a.Constraints.InterBookingBuffer()

	busy := make([]interval, 0, len(events))
	for _, ev := range events {
		if !ev.IsActive() {
			continue
		}
		busy = append(busy, interval{start: ev.StartTime.Add(-buffer), end: ev.EndTime.Add(buffer)})
	}
	busy = mergeIntervals(busy)

	first := civilDate(from, loc)
	last := civilDate(to, loc)

	slots := []Slot{}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)
		if blockedByTimeOff(a.TimeOff, day, dayEnd) {
			continue
		}
		for _, w := range dayWindows(a, day) {
			for _, gap := range subtract(w, busy) {
				if gap.end.Sub(gap.start) >= minLen {
					slots = append(slots, Slot{Start: gap.start, End: gap.end})
				}
			}
		}
	}
	return slots
}

// civilDate returns midnight of t's calendar date in loc. The date is taken
// from t's own wall clock so "2026-03-10" always means that date for the actor.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func blockedByTimeOff(off []models.TimeOff, dayStart, dayEnd time.Time) bool {
	for _, o := range off {
		if o.Start.Before(dayEnd) && o.End.After(dayStart) {
			return true
		}
	}
	return false
}

// dayWindows resolves the availability windows for one day: date-specific
// entries replace the weekday's recurring hours entirely.
func dayWindows(a *models.ActorAvailability, day time.Time) []interval {
	date := day.Format(dateLayout)

	type entry struct {
		start, end string
		ok         bool
	}
	var entries []entry
	custom := false
	for _, c := range a.CustomAvailability {
		if c.Date == date {
			custom = true
			entries = append(entries, entry{c.StartTime, c.EndTime, c.IsAvailable})
		}
	}
	if !custom {
		weekday := int(day.Weekday())
		for _, wh := range a.WorkingHours {
			if wh.DayOfWeek == weekday {
				entries = append(entries, entry{wh.StartTime, wh.EndTime, wh.IsAvailable})
			}
		}
	}

	var out []interval
	for _, e := range entries {
		if !e.ok {
			continue
		}
		startMin, err := validation.ParseClock(e.start)
		if err != nil {
			continue
		}
		endMin, err := validation.ParseClock(e.end)
		if err != nil || endMin <= startMin {
			continue
		}
		out = append(out, interval{start: atMinute(day, startMin), end: atMinute(day, endMin)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return mergeIntervals(out)
}

// atMinute builds wall-clock time on day; 1440 is the following midnight.
func atMinute(day time.Time, minute int) time.Time {
	if minute >= 24*60 {
		return day.AddDate(0, 0, 1)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, day.Location())
}

// mergeIntervals sorts and coalesces overlapping or touching intervals.
func mergeIntervals(in []interval) []interval {
	if len(in) == 0 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].start.Before(in[j].start) })
	out := []interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.start.After(last.end) {
			if iv.end.After(last.end) {
				last.end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// subtract removes the sorted, merged busy intervals from w.
func subtract(w interval, busy []interval) []interval {
	var out []interval
	cursor := w.start
	for _, b := range busy {
		if !b.end.After(cursor) {
			continue
		}
		if !b.start.Before(w.end) {
			break
		}
		if b.start.After(cursor) {
			out = append(out, interval{start: cursor, end: b.start})
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
	}
	if cursor.Before(w.end) {
		out = append(out, interval{start: cursor, end: w.end})
	}
	return out
}
