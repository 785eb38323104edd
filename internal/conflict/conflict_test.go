package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestOverlapsHalfOpen(t *testing.T) {
	tests := []struct {
		name       string
		aS, aE     time.Time
		bS, bE     time.Time
		want       bool
		wantMinute int
	}{
		{name: "disjoint", aS: at(0, 0), aE: at(1, 0), bS: at(2, 0), bE: at(3, 0), want: false},
		{name: "touching end", aS: at(0, 0), aE: at(1, 0), bS: at(1, 0), bE: at(2, 0), want: false},
		{name: "touching start", aS: at(1, 0), aE: at(2, 0), bS: at(0, 0), bE: at(1, 0), want: false},
		{name: "partial", aS: at(0, 0), aE: at(1, 0), bS: at(0, 30), bE: at(2, 0), want: true, wantMinute: 30},
		{name: "contained", aS: at(0, 0), aE: at(3, 0), bS: at(1, 0), bE: at(2, 0), want: true, wantMinute: 60},
		{name: "identical", aS: at(0, 0), aE: at(1, 0), bS: at(0, 0), bE: at(1, 0), want: true, wantMinute: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aS, tt.aE, tt.bS, tt.bE); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
			// symmetric
			if got := Overlaps(tt.bS, tt.bE, tt.aS, tt.aE); got != tt.want {
				t.Fatalf("Overlaps reversed = %v, want %v", got, tt.want)
			}
			if got := OverlapMinutes(tt.aS, tt.aE, tt.bS, tt.bE); got != tt.wantMinute {
				t.Fatalf("OverlapMinutes = %d, want %d", got, tt.wantMinute)
			}
		})
	}
}

func TestDetectSkipsInactiveExcludedAndForeignEvents(t *testing.T) {
	events := []models.CalendarEvent{
		{ID: "a", Title: "active", OrganizerID: "insp", Status: models.EventStatusScheduled, StartTime: at(0, 0), EndTime: at(1, 0)},
		{ID: "b", Title: "cancelled", OrganizerID: "insp", Status: models.EventStatusCancelled, StartTime: at(0, 0), EndTime: at(1, 0)},
		{ID: "c", Title: "deleted", OrganizerID: "insp", Status: models.EventStatusScheduled, StartTime: at(0, 0), EndTime: at(1, 0),
			DeletedAt: gorm.DeletedAt{Time: base, Valid: true}},
		{ID: "d", Title: "self", OrganizerID: "insp", Status: models.EventStatusScheduled, StartTime: at(0, 0), EndTime: at(1, 0)},
		{ID: "e", Title: "other actor", OrganizerID: "someone", Status: models.EventStatusScheduled, StartTime: at(0, 0), EndTime: at(1, 0)},
		{ID: "f", Title: "as participant", OrganizerID: "someone", Status: models.EventStatusConfirmed, StartTime: at(0, 15), EndTime: at(0, 45),
			Participants: []models.EventParticipant{{ActorID: "insp"}}},
	}

	got := Detect(Query{ActorID: "insp", Start: at(0, 0), End: at(1, 0), ExcludeEventID: "d"}, events)
	if len(got) != 2 {
		t.Fatalf("expected 2 conflicts, got %d: %+v", len(got), got)
	}
	if got[0].EventID != "a" || got[1].EventID != "f" {
		t.Fatalf("unexpected conflicts %+v", got)
	}
	if got[1].OverlapMinutes != 30 {
		t.Fatalf("overlap = %d, want 30", got[1].OverlapMinutes)
	}
}

func TestFindRejectsInvalidWindow(t *testing.T) {
	f := NewFinder(setupTestDB(t))
	for _, end := range []time.Time{at(0, 0), at(-1, 0)} {
		_, err := f.Find(context.Background(), Query{ActorID: "x", Start: at(0, 0), End: end})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
}

func TestFindAgainstDatabase(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	mk := func(title, organizer string, start, end time.Time, status models.EventStatus, participants ...string) models.CalendarEvent {
		ev := models.CalendarEvent{
			ID: uuid.NewString(), Title: title, EventType: models.EventTypeInspection,
			StartTime: start, EndTime: end, Status: status, OrganizerID: organizer,
		}
		for _, p := range participants {
			ev.Participants = append(ev.Participants, models.EventParticipant{ID: uuid.NewString(), ActorID: p})
		}
		if err := database.Create(&ev).Error; err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return ev
	}

	organized := mk("organized", "insp", at(1, 0), at(2, 0), models.EventStatusScheduled)
	invited := mk("invited", "mgr", at(1, 30), at(3, 0), models.EventStatusConfirmed, "insp")
	mk("cancelled", "insp", at(1, 0), at(2, 0), models.EventStatusCancelled)
	deleted := mk("deleted", "insp", at(1, 0), at(2, 0), models.EventStatusScheduled)
	if err := database.Delete(&deleted).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	mk("adjacent", "insp", at(2, 30), at(3, 30), models.EventStatusScheduled)

	got, err := NewFinder(database).Find(ctx, Query{ActorID: "insp", Start: at(1, 45), End: at(2, 30)})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 conflicts, got %d: %+v", len(got), got)
	}
	if got[0].EventID != organized.ID || got[1].EventID != invited.ID {
		t.Fatalf("unexpected order/ids: %+v", got)
	}

	got, err = NewFinder(database).Find(ctx, Query{ActorID: "insp", Start: at(1, 0), End: at(2, 0), ExcludeEventID: organized.ID})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].EventID != invited.ID {
		t.Fatalf("expected only the invited event, got %+v", got)
	}
}
