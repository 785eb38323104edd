/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/friendsincode/inspectd/internal/models"
)

const icsProductID = "-//inspectd//Inspection Calendar//EN"

// ICSExport is an encoded iCalendar feed.
type ICSExport struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportICS encodes the actor's upcoming events as an iCalendar feed.
func (s *Service) ExportICS(ctx context.Context, actorID string, days int) (*ICSExport, error) {
	evs, err := s.GetUpcomingEvents(ctx, actorID, days)
	if err != nil {
		return nil, err
	}

	stamp := s.now().UTC()
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icsProductID)
	cal.Props.SetText("X-WR-CALNAME", fmt.Sprintf("%s inspections", actorID))
	for i := range evs {
		cal.Children = append(cal.Children, toVEvent(&evs[i], stamp))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return &ICSExport{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("%s-%s.ics", actorID, stamp.Format("2006-01-02")),
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func toVEvent(ev *models.CalendarEvent, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.ID+"@inspectd")
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.UTC())
	ve.Props.SetText(ical.PropCategories, string(ev.EventType))

	status := "TENTATIVE"
	if ev.Status == models.EventStatusConfirmed {
		status = "CONFIRMED"
	}
	ve.Props.SetText(ical.PropStatus, status)

	if ev.HasConflict {
		ve.Props.SetText(ical.PropDescription, fmt.Sprintf("Overlaps %d other event(s)", len(ev.Conflicts)))
	}

	org := ical.NewProp(ical.PropOrganizer)
	org.Value = "urn:actor:" + ev.OrganizerID
	ve.Props.Add(org)
	for _, p := range ev.Participants {
		att := ical.NewProp(ical.PropAttendee)
		att.Value = "urn:actor:" + p.ActorID
		att.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
		ve.Props.Add(att)
	}
	return ve
}
