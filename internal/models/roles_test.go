package models

import "testing"

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		name string
		in   RoleName
		want RoleName
	}{
		{name: "admin canonical", in: RoleAdmin, want: RoleAdmin},
		{name: "upper case", in: RoleName("MANAGER"), want: RoleManager},
		{name: "padded", in: RoleName(" inspector "), want: RoleInspector},
		{name: "legacy administrator", in: RoleName("administrator"), want: RoleAdmin},
		{name: "legacy supervisor", in: RoleName("Supervisor"), want: RoleManager},
		{name: "unknown kept", in: RoleName("Auditor"), want: RoleName("auditor")},
	}

	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Fatalf("%s: NormalizeRole(%q)=%q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestRoleIsElevated(t *testing.T) {
	if !RoleName("administrator").IsElevated() {
		t.Fatal("expected legacy admin role to be elevated")
	}
	if RoleInspector.IsElevated() {
		t.Fatal("inspector must not be elevated")
	}
}

func TestCalendarEventHasParticipant(t *testing.T) {
	ev := CalendarEvent{
		OrganizerID:  "org",
		Participants: []EventParticipant{{ActorID: "p1"}},
	}
	for _, id := range []string{"org", "p1"} {
		if !ev.HasParticipant(id) {
			t.Fatalf("expected %s to be a participant", id)
		}
	}
	if ev.HasParticipant("other") {
		t.Fatal("unexpected participant")
	}
}

func TestAvailabilityLocationFallback(t *testing.T) {
	a := ActorAvailability{Timezone: "Not/AZone"}
	if a.Location().String() != "UTC" {
		t.Fatalf("location = %s, want UTC", a.Location())
	}
	a.Timezone = "Europe/Berlin"
	if a.Location().String() != "Europe/Berlin" {
		t.Fatalf("location = %s", a.Location())
	}
}
