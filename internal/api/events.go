/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/calendar"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/policy"
)

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleEventCreate(w http.ResponseWriter, r *http.Request) {
	caller := actor(r)
	var in calendar.CreateEventInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.OrganizerID == "" {
		in.OrganizerID = caller.ID
	}
	if in.OrganizerRole == "" && in.OrganizerID == caller.ID {
		in.OrganizerRole = caller.PrimaryRole()
	}
	// Only elevated callers may organize on someone else's behalf.
	if in.OrganizerID != caller.ID && !caller.IsElevated() {
		a.fail(w, r, apperr.Forbidden("actor %s may not create events for %s", caller.ID, in.OrganizerID))
		return
	}

	a.withIdempotency(w, r, "events", func() (string, any, error) {
		ev, err := a.calendar.CreateEvent(r.Context(), in)
		if err != nil {
			return "", nil, err
		}
		return ev.ID, ev, nil
	})
}

func (a *API) handleEventGet(w http.ResponseWriter, r *http.Request) {
	ev, err := a.calendar.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := policy.Authorize(actor(r), policy.EventResource(ev), policy.ActionView); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEventUpdate(w http.ResponseWriter, r *http.Request) {
	var upd calendar.EventUpdate
	if err := decode(r, &upd); err != nil {
		a.fail(w, r, err)
		return
	}
	ev, err := a.calendar.UpdateEvent(r.Context(), chi.URLParam(r, "eventID"), upd, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEventDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.calendar.DeleteEvent(r.Context(), chi.URLParam(r, "eventID"), actor(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEventConfirm(w http.ResponseWriter, r *http.Request) {
	ev, err := a.calendar.ConfirmEvent(r.Context(), chi.URLParam(r, "eventID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEventReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	ev, err := a.calendar.RescheduleEvent(r.Context(), chi.URLParam(r, "eventID"), req.StartTime, req.EndTime, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEventCancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	ev, err := a.calendar.CancelEvent(r.Context(), chi.URLParam(r, "eventID"), req.Reason, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleBookInspection(w http.ResponseWriter, r *http.Request) {
	var req calendar.BookingRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	req.RequestedBy = actor(r).ID

	a.withIdempotency(w, r, "bookings", func() (string, any, error) {
		ev, err := a.calendar.BookInspection(r.Context(), req)
		if err != nil {
			return "", nil, err
		}
		return ev.ID, ev, nil
	})
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	minutes, err := queryInt(r, "duration_minutes", 60)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	slots, err := a.availability.Slots(r.Context(), availability.SlotQuery{
		ActorID:  chi.URLParam(r, "actorID"),
		From:     from,
		To:       to,
		Duration: time.Duration(minutes) * time.Minute,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// authorizeActorRead allows the actor themself and elevated callers.
func authorizeActorRead(r *http.Request, actorID string) error {
	return policy.Authorize(actor(r), policy.AvailabilityResource(actorID), policy.ActionView)
}

func (a *API) handleConflicts(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if err := authorizeActorRead(r, actorID); err != nil {
		a.fail(w, r, err)
		return
	}
	start, err := queryTime(r, "start")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	conflicts, err := a.calendar.GetConflictsFor(r.Context(), actorID, start, end, r.URL.Query().Get("exclude_event_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (a *API) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if err := authorizeActorRead(r, actorID); err != nil {
		a.fail(w, r, err)
		return
	}
	days, err := queryInt(r, "days", 7)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	evs, err := a.calendar.GetUpcomingEvents(r.Context(), actorID, days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (a *API) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if err := authorizeActorRead(r, actorID); err != nil {
		a.fail(w, r, err)
		return
	}
	days, err := queryInt(r, "days", 30)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	export, err := a.calendar.ExportICS(r.Context(), actorID, days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (a *API) handleAvailabilityGet(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if err := authorizeActorRead(r, actorID); err != nil {
		a.fail(w, r, err)
		return
	}
	av, err := a.availability.Get(r.Context(), actorID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

func (a *API) handleAvailabilityPut(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if err := policy.Authorize(actor(r), policy.AvailabilityResource(actorID), policy.ActionManage); err != nil {
		a.fail(w, r, err)
		return
	}
	var in models.ActorAvailability
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	in.ActorID = actorID

	av, err := a.availability.Upsert(r.Context(), &in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}
