/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package policy answers whether an actor may perform an action on a
// calendar event, job assignment or availability profile.
package policy

import (
	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/models"
)

// Actor is the authenticated caller.
type Actor struct {
	ID    string
	Roles []models.RoleName
}

// NewActor builds an actor from raw claim roles, normalizing legacy labels.
func NewActor(id string, roles ...string) Actor {
	a := Actor{ID: id, Roles: make([]models.RoleName, 0, len(roles))}
	for _, r := range roles {
		a.Roles = append(a.Roles, models.NormalizeRole(models.RoleName(r)))
	}
	return a
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role models.RoleName) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsElevated reports whether any of the actor's roles is elevated.
func (a Actor) IsElevated() bool {
	for _, r := range a.Roles {
		if r.IsElevated() {
			return true
		}
	}
	return false
}

// PrimaryRole returns the first role, or "" for an actor without roles.
func (a Actor) PrimaryRole() models.RoleName {
	if len(a.Roles) == 0 {
		return ""
	}
	return a.Roles[0]
}

// ResourceKind names the protected record type.
type ResourceKind string

const (
	ResourceEvent        ResourceKind = "event"
	ResourceAssignment   ResourceKind = "assignment"
	ResourceAvailability ResourceKind = "availability"
)

// Action names an operation guarded by CanPerform.
type Action string

const (
	ActionView       Action = "view"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionConfirm    Action = "confirm"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionDelete     Action = "delete"
	ActionAccept     Action = "accept"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionReassign   Action = "reassign"
	ActionComment    Action = "comment"
	ActionAttach     Action = "attach"
	ActionManage     Action = "manage"
)

// Resource carries the ownership facts a decision needs.
type Resource struct {
	Kind ResourceKind
	ID   string

	OwnerID      string // event organizer, assignment assignee, availability actor
	CreatorID    string // assignment assigner
	Participants []string
}

// EventResource describes a calendar event.
func EventResource(ev *models.CalendarEvent) Resource {
	res := Resource{Kind: ResourceEvent, ID: ev.ID, OwnerID: ev.OrganizerID}
	for _, p := range ev.Participants {
		res.Participants = append(res.Participants, p.ActorID)
	}
	return res
}

// AssignmentResource describes a job assignment.
func AssignmentResource(a *models.JobAssignment) Resource {
	return Resource{Kind: ResourceAssignment, ID: a.ID, OwnerID: a.AssigneeID, CreatorID: a.AssignedBy}
}

// AvailabilityResource describes an actor's availability profile.
func AvailabilityResource(actorID string) Resource {
	return Resource{Kind: ResourceAvailability, ID: actorID, OwnerID: actorID}
}

func (r Resource) involves(actorID string) bool {
	if actorID == "" {
		return false
	}
	if r.OwnerID == actorID || r.CreatorID == actorID {
		return true
	}
	for _, p := range r.Participants {
		if p == actorID {
			return true
		}
	}
	return false
}

// CanPerform is the single permission decision point.
func CanPerform(actor Actor, res Resource, action Action) bool {
	if actor.ID == "" {
		return false
	}
	if actor.IsElevated() {
		return true
	}

	switch res.Kind {
	case ResourceEvent:
		switch action {
		case ActionView:
			return res.involves(actor.ID)
		case ActionCreate:
			return true
		case ActionConfirm:
			// participants confirm their attendance
			return res.involves(actor.ID)
		default:
			return res.OwnerID == actor.ID
		}

	case ResourceAssignment:
		switch action {
		case ActionCreate, ActionReassign:
			return false
		case ActionAccept, ActionStart, ActionComplete, ActionCancel:
			return res.OwnerID == actor.ID
		case ActionView, ActionComment, ActionAttach:
			return res.OwnerID == actor.ID || res.CreatorID == actor.ID
		}

	case ResourceAvailability:
		return res.OwnerID == actor.ID
	}
	return false
}

// Authorize returns a forbidden error when CanPerform denies the action.
func Authorize(actor Actor, res Resource, action Action) error {
	if CanPerform(actor, res, action) {
		return nil
	}
	return apperr.Forbidden("actor %s may not %s %s %s", actorLabel(actor), action, res.Kind, res.ID)
}

func actorLabel(a Actor) string {
	if a.ID == "" {
		return "(anonymous)"
	}
	return a.ID
}
