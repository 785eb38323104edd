/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/assignment"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/sla"
)

// assignmentResponse pairs an assignment with its live SLA figures.
type assignmentResponse struct {
	*models.JobAssignment
	SLA models.AssignmentSLA `json:"sla"`
}

type reassignRequest struct {
	AssigneeID string `json:"assignee_id"`
	Reason     string `json:"reason"`
}

type commentRequest struct {
	Message string `json:"message"`
}

func (a *API) respondAssignment(w http.ResponseWriter, status int, as *models.JobAssignment) {
	writeJSON(w, status, assignmentResponse{JobAssignment: as, SLA: a.assignments.SLA(as)})
}

func (a *API) handleAssignmentCreate(w http.ResponseWriter, r *http.Request) {
	var in assignment.CreateInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	a.withIdempotency(w, r, "assignments", func() (string, any, error) {
		as, err := a.assignments.Create(r.Context(), in, actor(r))
		if err != nil {
			return "", nil, err
		}
		return as.ID, assignmentResponse{JobAssignment: as, SLA: a.assignments.SLA(as)}, nil
	})
}

func (a *API) handleAssignmentGet(w http.ResponseWriter, r *http.Request) {
	as, err := a.assignments.View(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusOK, as)
}

func (a *API) handleAssignmentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.assignments.GetHistory(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleAssignmentAccept(w http.ResponseWriter, r *http.Request) {
	as, err := a.assignments.Accept(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusOK, as)
}

func (a *API) handleAssignmentStart(w http.ResponseWriter, r *http.Request) {
	as, err := a.assignments.Start(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusOK, as)
}

func (a *API) handleAssignmentComplete(w http.ResponseWriter, r *http.Request) {
	var evidence models.CompletionEvidence
	if err := decode(r, &evidence); err != nil {
		a.fail(w, r, err)
		return
	}
	as, err := a.assignments.Complete(r.Context(), chi.URLParam(r, "assignmentID"), evidence, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusOK, as)
}

func (a *API) handleAssignmentCancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	as, err := a.assignments.Cancel(r.Context(), chi.URLParam(r, "assignmentID"), req.Reason, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusOK, as)
}

func (a *API) handleAssignmentReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	as, err := a.assignments.Reassign(r.Context(), chi.URLParam(r, "assignmentID"), req.AssigneeID, req.Reason, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignment(w, http.StatusCreated, as)
}

func (a *API) handleCommentsList(w http.ResponseWriter, r *http.Request) {
	comments, err := a.assignments.Comments(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (a *API) handleCommentAdd(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.assignments.AddComment(r.Context(), chi.URLParam(r, "assignmentID"), req.Message, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleAttachmentsList(w http.ResponseWriter, r *http.Request) {
	attachments, err := a.assignments.Attachments(r.Context(), chi.URLParam(r, "assignmentID"), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": attachments})
}

func (a *API) handleAttachmentAdd(w http.ResponseWriter, r *http.Request) {
	var in assignment.AttachmentInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	att, err := a.assignments.AddAttachment(r.Context(), chi.URLParam(r, "assignmentID"), in, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (a *API) handleSLANearDeadline(w http.ResponseWriter, r *http.Request) {
	window := a.nearDeadline
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := queryInt(r, "hours", 0)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		window = time.Duration(hours) * time.Hour
	}
	list, err := a.sla.NearDeadline(r.Context(), window)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignments(w, list)
}

func (a *API) handleSLABreached(w http.ResponseWriter, r *http.Request) {
	list, err := a.sla.Breached(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondAssignments(w, list)
}

func (a *API) respondAssignments(w http.ResponseWriter, list []models.JobAssignment) {
	out := make([]assignmentResponse, len(list))
	for i := range list {
		out[i] = assignmentResponse{JobAssignment: &list[i], SLA: a.assignments.SLA(&list[i])}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": out, "total": len(out)})
}

func (a *API) handleSLAStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sla.StatsFilter{
		JobType:    models.JobType(q.Get("job_type")),
		Role:       models.NormalizeRole(models.RoleName(q.Get("role"))),
		AssigneeID: q.Get("assignee_id"),
	}
	if q.Get("from") != "" {
		from, err := queryTime(r, "from")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.From = from
	}
	if q.Get("to") != "" {
		to, err := queryTime(r, "to")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		filter.To = to
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		a.fail(w, r, apperr.Validation("to must be after from"))
		return
	}

	stats, err := a.sla.Statistics(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statistics": stats})
}
