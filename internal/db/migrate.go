/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/inspectd/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Scheduling
		&models.ActorAvailability{},
		&models.CalendarEvent{},
		&models.EventParticipant{},

		// Assignment ledger
		&models.JobAssignment{},
		&models.AssignmentHistory{},
		&models.AssignmentComment{},
		&models.AssignmentAttachment{},

		// Audit and notifications
		&models.AuditLog{},
		&models.Notification{},
	); err != nil {
		return err
	}

	if err := applyPostgresInspectionOverlapGuard(database); err != nil {
		return err
	}
	if err := normalizeLegacyRoles(database); err != nil {
		return err
	}

	return nil
}

// inspectionOverlapGuardSQL rejects an active INSPECTION that overlaps another
// active event of the same organizer unless the row carries conflict
// annotations. Updates fire it only when the window or organizer changes value.
const inspectionOverlapGuardSQL = `
CREATE OR REPLACE FUNCTION prevent_inspection_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.end_time <= NEW.start_time THEN
    RAISE EXCEPTION 'calendar event end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF NEW.event_type <> 'INSPECTION'
     OR NEW.status = 'CANCELLED'
     OR NEW.deleted_at IS NOT NULL
     OR NEW.has_conflict THEN
    RETURN NEW;
  END IF;

  IF EXISTS (
    SELECT 1
    FROM calendar_events ce
    WHERE ce.organizer_id = NEW.organizer_id
      AND ce.id <> NEW.id
      AND ce.status <> 'CANCELLED'
      AND ce.deleted_at IS NULL
      AND tstzrange(ce.start_time, ce.end_time, '[)') && tstzrange(NEW.start_time, NEW.end_time, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping inspection is not allowed for organizer %', NEW.organizer_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_inspection_overlap ON calendar_events;
DROP TRIGGER IF EXISTS trg_prevent_inspection_overlap_insert ON calendar_events;
DROP TRIGGER IF EXISTS trg_prevent_inspection_overlap_move ON calendar_events;

CREATE TRIGGER trg_prevent_inspection_overlap_insert
BEFORE INSERT
ON calendar_events
FOR EACH ROW
EXECUTE FUNCTION prevent_inspection_overlap();

CREATE TRIGGER trg_prevent_inspection_overlap_move
BEFORE UPDATE
ON calendar_events
FOR EACH ROW
WHEN (OLD.start_time IS DISTINCT FROM NEW.start_time
      OR OLD.end_time IS DISTINCT FROM NEW.end_time
      OR OLD.organizer_id IS DISTINCT FROM NEW.organizer_id)
EXECUTE FUNCTION prevent_inspection_overlap();
`

// applyPostgresInspectionOverlapGuard installs the overlap trigger. It closes the
// window between the conflict read and the insert when several instances book
// the same actor.
func applyPostgresInspectionOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	if err := database.Exec(inspectionOverlapGuardSQL).Error; err != nil {
		return fmt.Errorf("apply postgres inspection overlap guard: %w", err)
	}

	return nil
}

// normalizeLegacyRoles rewrites role labels stored before canonical names existed.
func normalizeLegacyRoles(database *gorm.DB) error {
	if err := database.Exec("UPDATE job_assignments SET role = ? WHERE LOWER(TRIM(role)) IN ?", models.RoleOfficer, []string{"inspection_officer"}).Error; err != nil {
		return fmt.Errorf("normalize legacy assignment roles: %w", err)
	}
	if err := database.Exec("UPDATE calendar_events SET organizer_role = ? WHERE LOWER(TRIM(organizer_role)) IN ?", models.RoleInspector, []string{"field_inspector"}).Error; err != nil {
		return fmt.Errorf("normalize legacy organizer roles: %w", err)
	}
	return nil
}
