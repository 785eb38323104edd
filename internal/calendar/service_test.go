package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/locks"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/policy"
)

// 2026-03-02 is a Monday.
var baseNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []string
	alerts        []string
	err           error
}

func (f *fakeNotifier) SendBookingConfirmation(_ context.Context, ev *models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = append(f.confirmations, ev.ID)
	return f.err
}

func (f *fakeNotifier) SendConflictAlert(_ context.Context, ev *models.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, ev.ID)
	return f.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	avail    *availability.Store
	notifier *fakeNotifier
	bus      *events.Bus
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := setupTestDB(t)
	bus := events.NewBus()
	avail := availability.NewStore(database, nil, bus, zerolog.Nop())
	f := &fixture{db: database, avail: avail, notifier: &fakeNotifier{}, bus: bus, now: baseNow}
	f.svc = NewService(database, avail, locks.NewLocal(), f.notifier, bus, zerolog.Nop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) profile(t *testing.T, actorID string, mutate func(*models.ActorAvailability)) {
	t.Helper()
	a := &models.ActorAvailability{ActorID: actorID, Timezone: "UTC", IsActive: true}
	for d := 1; d <= 5; d++ {
		a.WorkingHours = append(a.WorkingHours, models.WorkingHours{DayOfWeek: d, StartTime: "08:00", EndTime: "18:00", IsAvailable: true})
	}
	if mutate != nil {
		mutate(a)
	}
	if _, err := f.avail.Upsert(context.Background(), a); err != nil {
		t.Fatalf("upsert availability: %v", err)
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func booking(actorID string, start, end time.Time) BookingRequest {
	return BookingRequest{ActorID: actorID, Role: models.RoleInspector, StartTime: start, EndTime: end, SubjectRefs: map[string]string{"farm": "F-1"}}
}

func wantError(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	if msg != "" && err.Error() != msg {
		t.Fatalf("message = %q, want %q", err.Error(), msg)
	}
}

func TestBookInspectionWindowCheckedFirst(t *testing.T) {
	f := newFixture(t)
	// No availability configured: the window check still wins.
	for _, end := range []time.Time{at(9, 10, 0), at(9, 9, 0)} {
		_, err := f.svc.BookInspection(context.Background(), booking("insp", at(9, 10, 0), end))
		wantError(t, err, apperr.KindValidation, "end time must be after start time")
	}
}

func TestBookInspectionRequiresActiveAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BookInspection(ctx, booking("insp", at(9, 10, 0), at(9, 11, 0)))
	wantError(t, err, apperr.KindConstraint, "availability not configured")

	f.profile(t, "insp", func(a *models.ActorAvailability) { a.IsActive = false })
	_, err = f.svc.BookInspection(ctx, booking("insp", at(9, 10, 0), at(9, 11, 0)))
	wantError(t, err, apperr.KindConstraint, "availability not configured")
}

func TestBookInspectionAdvanceNoticeBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "insp", func(a *models.ActorAvailability) { a.Constraints.AdvanceBookingDays = 7 })

	start := at(9, 10, 0)
	f.now = start.Add(-7*24*time.Hour + time.Minute)
	_, err := f.svc.BookInspection(ctx, booking("insp", start, start.Add(time.Hour)))
	wantError(t, err, apperr.KindConstraint, "bookings require at least 7 days advance notice")

	f.now = start.Add(-7 * 24 * time.Hour)
	if _, err := f.svc.BookInspection(ctx, booking("insp", start, start.Add(time.Hour))); err != nil {
		t.Fatalf("booking exactly at the notice boundary should succeed: %v", err)
	}
}

func TestBookInspectionRejectsPastStartWithoutNotice(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "insp", nil)
	_, err := f.svc.BookInspection(context.Background(), booking("insp", baseNow.Add(-time.Hour), baseNow))
	wantError(t, err, apperr.KindConstraint, "bookings cannot start in the past")
}

func TestBookInspectionDailyCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "insp", func(a *models.ActorAvailability) { a.Constraints.MaxDailyBookings = 2 })

	for _, h := range []int{9, 11} {
		if _, err := f.svc.BookInspection(ctx, booking("insp", at(9, h, 0), at(9, h+1, 0))); err != nil {
			t.Fatalf("booking at %d:00: %v", h, err)
		}
	}
	// A meeting does not count towards inspection capacity.
	if _, err := f.svc.CreateEvent(ctx, CreateEventInput{
		Title: "sync", EventType: models.EventTypeMeeting, StartTime: at(9, 15, 0), EndTime: at(9, 15, 30), OrganizerID: "insp",
	}); err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	_, err := f.svc.BookInspection(ctx, booking("insp", at(9, 13, 0), at(9, 14, 0)))
	wantError(t, err, apperr.KindConstraint, "daily booking limit of 2 reached")

	if _, err := f.svc.BookInspection(ctx, booking("insp", at(10, 13, 0), at(10, 14, 0))); err != nil {
		t.Fatalf("next day booking should succeed: %v", err)
	}
}

func TestBookInspectionCancelledEventsFreeCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "insp", func(a *models.ActorAvailability) { a.Constraints.MaxDailyBookings = 1 })

	ev, err := f.svc.BookInspection(ctx, booking("insp", at(9, 9, 0), at(9, 10, 0)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.CancelEvent(ctx, ev.ID, "farm closed", policy.NewActor("insp", "inspector")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.BookInspection(ctx, booking("insp", at(9, 9, 0), at(9, 10, 0))); err != nil {
		t.Fatalf("rebooking a cancelled slot should succeed: %v", err)
	}
}

func TestBookInspectionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "insp", nil)

	first, err := f.svc.BookInspection(ctx, booking("insp", at(9, 10, 0), at(9, 11, 0)))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.HasConflict {
		t.Fatal("first booking should not be annotated")
	}

	_, err = f.svc.BookInspection(ctx, booking("insp", at(9, 10, 30), at(9, 11, 30)))
	wantError(t, err, apperr.KindConstraint, "requested time conflicts with 1 existing event(s)")

	// Touching windows do not conflict.
	if _, err := f.svc.BookInspection(ctx, booking("insp", at(9, 11, 0), at(9, 12, 0))); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}

	f.profile(t, "insp", func(a *models.ActorAvailability) { a.Preferences.AutoAcceptWithConflict = true })
	ev, err := f.svc.BookInspection(ctx, booking("insp", at(9, 10, 30), at(9, 11, 30)))
	if err != nil {
		t.Fatalf("auto-accepted booking: %v", err)
	}
	if !ev.HasConflict || len(ev.Conflicts) != 2 {
		t.Fatalf("expected 2 recorded conflicts, got %+v", ev.Conflicts)
	}
	if ev.Conflicts[0].EventID != first.ID || ev.Conflicts[0].OverlapMinutes != 30 {
		t.Fatalf("unexpected first conflict %+v", ev.Conflicts[0])
	}

	stored, err := f.svc.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.HasConflict || len(stored.Conflicts) != 2 || stored.RelatedEntities["farm"] != "F-1" {
		t.Fatalf("annotations not persisted: %+v", stored)
	}
	if stored.EventType != models.EventTypeInspection || stored.Status != models.EventStatusScheduled || stored.OrganizerRole != models.RoleInspector {
		t.Fatalf("unexpected stored event %+v", stored)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.confirmations) != 3 || len(f.notifier.alerts) != 1 || f.notifier.alerts[0] != ev.ID {
		t.Fatalf("notifications: confirmations=%v alerts=%v", f.notifier.confirmations, f.notifier.alerts)
	}
}

func TestBookInspectionNotificationFailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "insp", nil)
	f.notifier.err = errors.New("smtp down")

	ev, err := f.svc.BookInspection(context.Background(), booking("insp", at(9, 10, 0), at(9, 11, 0)))
	if err != nil {
		t.Fatalf("booking should succeed despite notifier failure: %v", err)
	}
	if _, err := f.svc.GetEvent(context.Background(), ev.ID); err != nil {
		t.Fatalf("booking was not persisted: %v", err)
	}
}

func TestBookInspectionConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	f.profile(t, "insp", nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BookInspection(context.Background(), booking("insp", at(9, 10, 0), at(9, 11, 0)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.KindConstraint):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || rejected != workers-1 {
		t.Fatalf("succeeded=%d rejected=%d, want 1 and %d", succeeded, rejected, workers-1)
	}
}

func TestBookingKeysSpanDates(t *testing.T) {
	keys := bookingKeys("insp", at(9, 23, 0), at(10, 1, 0), time.UTC)
	if len(keys) != 2 || keys[0] != "booking:insp:2026-03-09" || keys[1] != "booking:insp:2026-03-10" {
		t.Fatalf("unexpected keys %v", keys)
	}
	keys = bookingKeys("insp", at(9, 22, 0), at(10, 0, 0), time.UTC)
	if len(keys) != 1 {
		t.Fatalf("window ending at midnight should lock one date, got %v", keys)
	}
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := policy.NewActor("org", "officer")
	stranger := policy.NewActor("other", "inspector")

	blocker, err := f.svc.CreateEvent(ctx, CreateEventInput{
		Title: "existing", EventType: models.EventTypeMeeting, StartTime: at(9, 9, 0), EndTime: at(9, 10, 0), OrganizerID: "guest",
	})
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}

	ev, err := f.svc.CreateEvent(ctx, CreateEventInput{
		Title: "review", EventType: models.EventTypeMeeting, StartTime: at(9, 9, 30), EndTime: at(9, 10, 30),
		OrganizerID: "org", Participants: []ParticipantInput{{ActorID: "guest", Role: "field_inspector"}, {ActorID: "org"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ev.HasConflict || len(ev.Conflicts) != 1 || ev.Conflicts[0].EventID != blocker.ID {
		t.Fatalf("participant conflict not annotated: %+v", ev.Conflicts)
	}
	if len(ev.Participants) != 1 || ev.Participants[0].Role != models.RoleInspector {
		t.Fatalf("participants not deduplicated and normalized: %+v", ev.Participants)
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatalf("expected a conflict alert, got %v", f.notifier.alerts)
	}

	if _, err := f.svc.UpdateEvent(ctx, ev.ID, EventUpdate{Title: strPtr("hijack")}, stranger); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected forbidden update, got %v", err)
	}

	moved, err := f.svc.RescheduleEvent(ctx, ev.ID, at(9, 11, 0), at(9, 12, 0), organizer)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Status != models.EventStatusRescheduled || moved.HasConflict || len(moved.Conflicts) != 0 {
		t.Fatalf("reschedule should clear conflicts: %+v", moved)
	}

	confirmed, err := f.svc.ConfirmEvent(ctx, ev.ID, policy.NewActor("guest", "inspector"))
	if err != nil {
		t.Fatalf("participant confirm: %v", err)
	}
	if confirmed.Status != models.EventStatusConfirmed {
		t.Fatalf("status = %s", confirmed.Status)
	}
	if _, err := f.svc.ConfirmEvent(ctx, ev.ID, organizer); !apperr.Is(err, apperr.KindConstraint) {
		t.Fatalf("double confirm should be a constraint violation, got %v", err)
	}

	cancelled, err := f.svc.CancelEvent(ctx, ev.ID, "no longer needed", organizer)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelledAt == nil || cancelled.CancelReason != "no longer needed" {
		t.Fatalf("cancel not recorded: %+v", cancelled)
	}
	if _, err := f.svc.RescheduleEvent(ctx, ev.ID, at(9, 13, 0), at(9, 14, 0), organizer); !apperr.Is(err, apperr.KindConstraint) {
		t.Fatalf("rescheduling a cancelled event should fail, got %v", err)
	}
	if _, err := f.svc.GetEvent(ctx, ev.ID); err != nil {
		t.Fatalf("cancelled events stay readable: %v", err)
	}

	if err := f.svc.DeleteEvent(ctx, blocker.ID, organizer); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := f.svc.DeleteEvent(ctx, blocker.ID, policy.NewActor("boss", "manager")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetEvent(ctx, blocker.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("deleted event should be not found, got %v", err)
	}
	var count int64
	f.db.Unscoped().Model(&models.CalendarEvent{}).Where("id = ?", blocker.ID).Count(&count)
	if count != 1 {
		t.Fatal("soft-deleted event should be retained")
	}
}

func TestUpdateEventRecomputesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := policy.NewActor("org", "officer")

	other, err := f.svc.CreateEvent(ctx, CreateEventInput{Title: "a", EventType: models.EventTypeOther, StartTime: at(9, 14, 0), EndTime: at(9, 15, 0), OrganizerID: "org"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ev, err := f.svc.CreateEvent(ctx, CreateEventInput{Title: "b", EventType: models.EventTypeOther, StartTime: at(9, 9, 0), EndTime: at(9, 10, 0), OrganizerID: "org"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	start := at(9, 14, 30)
	updated, err := f.svc.UpdateEvent(ctx, ev.ID, EventUpdate{StartTime: &start, EndTime: timePtr(at(9, 15, 30))}, owner)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.HasConflict || updated.Conflicts[0].EventID != other.ID {
		t.Fatalf("conflict not recomputed: %+v", updated.Conflicts)
	}

	bad := at(9, 13, 0)
	if _, err := f.svc.UpdateEvent(ctx, ev.ID, EventUpdate{EndTime: &bad}, owner); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("inverted window should be rejected, got %v", err)
	}
}

func TestUpcomingAndConflictsExcludeInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := policy.NewActor("insp", "inspector")

	mk := func(title string, start time.Time) *models.CalendarEvent {
		ev, err := f.svc.CreateEvent(ctx, CreateEventInput{Title: title, EventType: models.EventTypeInspection, StartTime: start, EndTime: start.Add(time.Hour), OrganizerID: "insp"})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return ev
	}
	mk("past", baseNow.Add(-2*time.Hour))
	later := mk("later", at(5, 9, 0))
	soon := mk("soon", at(3, 9, 0))
	cancelled := mk("cancelled", at(4, 9, 0))
	deleted := mk("deleted", at(4, 12, 0))
	mk("far", at(20, 9, 0))

	if _, err := f.svc.CancelEvent(ctx, cancelled.ID, "", owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.svc.DeleteEvent(ctx, deleted.ID, owner); err != nil {
		t.Fatalf("delete: %v", err)
	}

	upcoming, err := f.svc.GetUpcomingEvents(ctx, "insp", 7)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].ID != soon.ID || upcoming[1].ID != later.ID {
		t.Fatalf("unexpected upcoming %+v", upcoming)
	}

	conflicts, err := f.svc.GetConflictsFor(ctx, "insp", at(4, 0, 0), at(5, 0, 0), "")
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("cancelled and deleted events must not conflict: %+v", conflicts)
	}

	if _, err := f.svc.GetUpcomingEvents(ctx, "insp", 0); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("days=0 should be invalid, got %v", err)
	}
	if _, err := f.svc.GetConflictsFor(ctx, "insp", at(4, 0, 0), at(4, 0, 0), ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("zero-length window should be invalid, got %v", err)
	}
}

func TestExportICS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []int{3, 4} {
		if _, err := f.svc.CreateEvent(ctx, CreateEventInput{
			Title: "farm visit, north", EventType: models.EventTypeInspection,
			StartTime: at(d, 9, 0), EndTime: at(d, 11, 0), OrganizerID: "insp",
			Participants: []ParticipantInput{{ActorID: "farmer"}},
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	export, err := f.svc.ExportICS(ctx, "insp", 30)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(export.ContentType, "text/calendar") || !strings.HasSuffix(export.Filename, ".ics") {
		t.Fatalf("unexpected export metadata %+v", export)
	}

	cal, err := ical.NewDecoder(strings.NewReader(string(export.Data))).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	evs := cal.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 VEVENTs, got %d", len(evs))
	}
	summary, err := evs[0].Props.Text(ical.PropSummary)
	if err != nil || summary != "farm visit, north" {
		t.Fatalf("summary = %q, %v", summary, err)
	}
	start, err := evs[0].DateTimeStart(time.UTC)
	if err != nil || !start.Equal(at(3, 9, 0)) {
		t.Fatalf("start = %s, %v", start, err)
	}

	// Participants without a platform role are still required attendees.
	att := evs[0].Props.Get(ical.PropAttendee)
	if att == nil || att.Value != "urn:actor:farmer" {
		t.Fatalf("attendee = %+v", att)
	}
	if role := att.Params.Get(ical.ParamRole); role != "REQ-PARTICIPANT" {
		t.Fatalf("attendee role = %q", role)
	}
}

func strPtr(s string) *string { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func TestLifecycleUpdatesAfterAdvisoryOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profile(t, "insp", nil)
	inspector := policy.NewActor("insp", "inspector")

	booked, err := f.svc.BookInspection(ctx, booking("insp", at(9, 9, 0), at(9, 10, 0)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if booked.HasConflict {
		t.Fatal("first booking should be conflict free")
	}
	if _, err := f.svc.CreateEvent(ctx, CreateEventInput{
		Title: "standup", EventType: models.EventTypeMeeting, StartTime: at(9, 9, 30), EndTime: at(9, 10, 30), OrganizerID: "insp",
	}); err != nil {
		t.Fatalf("advisory overlap should be accepted: %v", err)
	}

	confirmed, err := f.svc.ConfirmEvent(ctx, booked.ID, inspector)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != models.EventStatusConfirmed {
		t.Fatalf("status = %s", confirmed.Status)
	}
	if _, err := f.svc.UpdateEvent(ctx, booked.ID, EventUpdate{Title: strPtr("farm visit")}, inspector); err != nil {
		t.Fatalf("title update: %v", err)
	}
}

func TestStorageGuardRejectionIsConstraintViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := policy.NewActor("org", "officer")

	ev, err := f.svc.CreateEvent(ctx, CreateEventInput{Title: "a", EventType: models.EventTypeOther, StartTime: at(9, 9, 0), EndTime: at(9, 10, 0), OrganizerID: "org"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	guard := `CREATE TRIGGER reject_moves BEFORE UPDATE ON calendar_events
WHEN OLD.start_time <> NEW.start_time
BEGIN SELECT RAISE(ABORT, 'overlapping inspection is not allowed'); END;`
	if err := f.db.Exec(guard).Error; err != nil {
		t.Fatalf("install guard: %v", err)
	}

	_, err = f.svc.RescheduleEvent(ctx, ev.ID, at(9, 11, 0), at(9, 12, 0), owner)
	wantError(t, err, apperr.KindConstraint, "")

	got, err := f.svc.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartTime.Equal(at(9, 9, 0)) {
		t.Fatalf("rejected reschedule changed the event: %s", got.StartTime)
	}

	// Writes that keep the window are unaffected.
	if _, err := f.svc.ConfirmEvent(ctx, ev.ID, owner); err != nil {
		t.Fatalf("confirm: %v", err)
	}
}
