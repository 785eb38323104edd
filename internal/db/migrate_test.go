package db

import (
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/inspectd/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrateCreatesSchedulingAndLedgerTables(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{
		"actor_availability",
		"calendar_events",
		"event_participants",
		"job_assignments",
		"assignment_history",
		"assignment_comments",
		"assignment_attachments",
		"audit_logs",
		"notifications",
	} {
		if !database.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestMigrateNormalizesLegacyRoles(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Now().UTC()
	a := models.JobAssignment{
		ID: "11111111-1111-1111-1111-111111111111", SubjectID: "s", AssigneeID: "u", Role: "Inspection_Officer",
		JobType: models.JobTypeGeneral, Status: models.AssignmentStatusAssigned, AssignedBy: "m",
		AssignedAt: now, ExpectedDurationHours: 72, DueDate: now.Add(72 * time.Hour),
	}
	if err := database.Create(&a).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	var got models.JobAssignment
	if err := database.First(&got, "id = ?", a.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Role != models.RoleOfficer {
		t.Fatalf("role = %q, want %q", got.Role, models.RoleOfficer)
	}
}

func TestInspectionOverlapGuardSkipsLifecycleUpdates(t *testing.T) {
	if !strings.Contains(inspectionOverlapGuardSQL, "BEFORE INSERT\nON calendar_events") {
		t.Fatal("guard must run on insert")
	}
	if strings.Contains(inspectionOverlapGuardSQL, "UPDATE OF") {
		t.Fatal("column-list update triggers fire on every full-row save")
	}
	for _, col := range []string{"start_time", "end_time", "organizer_id"} {
		if !strings.Contains(inspectionOverlapGuardSQL, "OLD."+col+" IS DISTINCT FROM NEW."+col) {
			t.Fatalf("update guard does not compare %s", col)
		}
	}
	for _, col := range []string{"OLD.status", "OLD.has_conflict", "OLD.title"} {
		if strings.Contains(inspectionOverlapGuardSQL, col) {
			t.Fatalf("update guard must not depend on %s", col)
		}
	}
}
