/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sla holds the per-job-type service level table and derives
// timing, deadline and breach information for job assignments.
package sla

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/inspectd/internal/models"
)

// Rule is the SLA for one job type.
type Rule struct {
	ExpectedDurationHours int             `yaml:"expected_duration_hours" json:"expected_duration_hours"`
	DefaultRole           models.RoleName `yaml:"default_role" json:"default_role"`
}

// Table maps job types to rules. Unmapped types use the GENERAL rule.
type Table struct {
	rules map[models.JobType]Rule
}

// DefaultTable returns the built-in rules.
func DefaultTable() *Table {
	return &Table{rules: map[models.JobType]Rule{
		models.JobTypeDocumentReview:      {ExpectedDurationHours: 48, DefaultRole: models.RoleReviewer},
		models.JobTypeFarmInspection:      {ExpectedDurationHours: 120, DefaultRole: models.RoleInspector},
		models.JobTypeVideoCallInspection: {ExpectedDurationHours: 72, DefaultRole: models.RoleInspector},
		models.JobTypeOnsiteInspection:    {ExpectedDurationHours: 168, DefaultRole: models.RoleInspector},
		models.JobTypeFinalApproval:       {ExpectedDurationHours: 24, DefaultRole: models.RoleApprover},
		models.JobTypeGeneral:             {ExpectedDurationHours: 72, DefaultRole: models.RoleOfficer},
	}}
}

// fileFormat is the override file layout:
//
//	job_types:
//	  FARM_INSPECTION:
//	    expected_duration_hours: 96
//	  SOIL_SAMPLING:
//	    expected_duration_hours: 36
//	    default_role: inspector
type fileFormat struct {
	JobTypes map[string]Rule `yaml:"job_types"`
}

// LoadTable returns the default table with the rules in path layered on top.
// An empty path returns the defaults.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sla table: %w", err)
	}
	if err := t.merge(data); err != nil {
		return nil, fmt.Errorf("sla table %s: %w", path, err)
	}
	return t, nil
}

func (t *Table) merge(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for name, r := range f.JobTypes {
		if name == "" {
			return fmt.Errorf("empty job type")
		}
		if r.ExpectedDurationHours <= 0 {
			return fmt.Errorf("job type %s: expected_duration_hours must be positive", name)
		}
		jt := models.JobType(name)
		if r.DefaultRole == "" {
			r.DefaultRole = t.Rule(jt).DefaultRole
		}
		r.DefaultRole = models.NormalizeRole(r.DefaultRole)
		t.rules[jt] = r
	}
	return nil
}

// Rule returns the rule for jobType, falling back to GENERAL.
func (t *Table) Rule(jobType models.JobType) Rule {
	if r, ok := t.rules[jobType]; ok {
		return r
	}
	return t.rules[models.JobTypeGeneral]
}

// Known reports whether jobType has its own rule.
func (t *Table) Known(jobType models.JobType) bool {
	_, ok := t.rules[jobType]
	return ok
}

// DueDate returns assignedAt plus the expected duration for jobType.
func (t *Table) DueDate(jobType models.JobType, assignedAt time.Time) time.Time {
	return assignedAt.Add(time.Duration(t.Rule(jobType).ExpectedDurationHours) * time.Hour)
}

// Calculate derives SLA timing. Open assignments are measured against now;
// completed and cancelled ones are frozen at the time they closed.
func Calculate(a *models.JobAssignment, now time.Time) models.AssignmentSLA {
	end := now
	switch {
	case a.Status == models.AssignmentStatusCompleted && a.CompletedAt != nil:
		end = *a.CompletedAt
	case a.Status == models.AssignmentStatusCancelled && a.CancelledAt != nil:
		end = *a.CancelledAt
	}
	actual := end.Sub(a.AssignedAt).Hours()
	return models.AssignmentSLA{
		ExpectedDurationHours: a.ExpectedDurationHours,
		DueDate:               a.DueDate,
		ActualDurationHours:   actual,
		IsOnTime:              actual <= float64(a.ExpectedDurationHours),
	}
}
