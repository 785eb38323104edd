/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/inspectd/internal/audit"
	"github.com/friendsincode/inspectd/internal/models"
)

// handleNotificationsList returns the caller's notifications.
func (a *API) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list, total, err := a.notifications.ListForRecipient(r.Context(), actor(r).ID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// auditLogResponse is the JSON response for an audit log entry.
type auditLogResponse struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      *string        `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// handleAuditList returns a paginated list of audit logs (elevated roles only).
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseAuditFilters(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	response := make([]auditLogResponse, len(logs))
	for i, entry := range logs {
		response[i] = auditLogResponse{
			ID:           entry.ID,
			Timestamp:    entry.Timestamp,
			ActorID:      entry.ActorID,
			Action:       string(entry.Action),
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			Details:      entry.Details,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_logs": response,
		"total":      total,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}

func parseAuditFilters(r *http.Request) (audit.QueryFilters, error) {
	q := r.URL.Query()
	var filters audit.QueryFilters

	if v := q.Get("actor_id"); v != "" {
		filters.ActorID = &v
	}
	if v := q.Get("resource_id"); v != "" {
		filters.ResourceID = &v
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		filters.Action = &action
	}
	if q.Get("start") != "" {
		t, err := queryTime(r, "start")
		if err != nil {
			return filters, err
		}
		filters.StartTime = &t
	}
	if q.Get("end") != "" {
		t, err := queryTime(r, "end")
		if err != nil {
			return filters, err
		}
		filters.EndTime = &t
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		return filters, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return filters, err
	}
	if offset < 0 {
		offset = 0
	}
	filters.Limit = limit
	filters.Offset = offset
	return filters, nil
}
