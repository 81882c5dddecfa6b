package domain

import (
	"testing"
	"time"
)

func TestTemplateForCohort(t *testing.T) {
	tests := []struct {
		name     string
		position int
		size     int
		want     string
		wantOK   bool
	}{
		{name: "single doctor works full day", position: 0, size: 1, want: "08:00-18:00", wantOK: true},
		{name: "first of two takes morning", position: 0, size: 2, want: "08:00-13:00", wantOK: true},
		{name: "second of two takes afternoon", position: 1, size: 2, want: "13:00-18:00", wantOK: true},
		{name: "first of three", position: 0, size: 3, want: "08:00-12:00", wantOK: true},
		{name: "second of three", position: 1, size: 3, want: "11:00-15:00", wantOK: true},
		{name: "third of three", position: 2, size: 3, want: "14:00-18:00", wantOK: true},
		{name: "fourth of four rotates back", position: 3, size: 4, want: "08:00-12:00", wantOK: true},
		{name: "fifth of five", position: 4, size: 5, want: "11:00-15:00", wantOK: true},
		{name: "empty cohort", position: 0, size: 0, wantOK: false},
		{name: "position outside cohort", position: 2, size: 2, wantOK: false},
		{name: "negative position", position: -1, size: 3, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TemplateForCohort(tt.position, tt.size)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Fatalf("template = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShiftTemplateOn_KeepsCalendarDateInLocation(t *testing.T) {
	loc, err := LoadClinicLocation(DefaultClinicTimezone)
	if err != nil {
		t.Fatalf("LoadClinicLocation error: %v", err)
	}

	// 2026-03-03 02:00 UTC is still 2026-03-02 in Bogota.
	day := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	shift := rotatingPattern[2].On(day, loc)

	if got := shift.Start.Format("2006-01-02 15:04"); got != "2026-03-02 14:00" {
		t.Fatalf("start = %s, want 2026-03-02 14:00", got)
	}
	if got := shift.End.Format("2006-01-02 15:04"); got != "2026-03-02 18:00" {
		t.Fatalf("end = %s, want 2026-03-02 18:00", got)
	}
	if !shift.Start.Before(shift.End) {
		t.Fatalf("start must be before end")
	}
}

func TestShiftInstanceContains(t *testing.T) {
	loc := time.UTC
	shift := halfDayPattern[0].On(time.Date(2026, 3, 2, 0, 0, 0, 0, loc), loc)

	if !shift.Contains(time.Date(2026, 3, 2, 8, 0, 0, 0, loc)) {
		t.Fatalf("start must be inside the shift")
	}
	if !shift.Contains(time.Date(2026, 3, 2, 12, 59, 0, 0, loc)) {
		t.Fatalf("12:59 must be inside the shift")
	}
	if shift.Contains(time.Date(2026, 3, 2, 13, 0, 0, 0, loc)) {
		t.Fatalf("end must be outside the shift")
	}
	if shift.Contains(time.Date(2026, 3, 2, 7, 59, 0, 0, loc)) {
		t.Fatalf("07:59 must be outside the shift")
	}
}

func TestParseAvailableDays(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "default when empty", raw: "", want: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}},
		{name: "braced", raw: "{Monday,Saturday}", want: []string{"Monday", "Saturday"}},
		{name: "bare with spaces", raw: " Monday , Tuesday ", want: []string{"Monday", "Tuesday"}},
		{name: "braced with spaces", raw: "{ lunes, martes }", want: []string{"lunes", "martes"}},
		{name: "drops empty entries", raw: "{Monday,,Friday,}", want: []string{"Monday", "Friday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAvailableDays(tt.raw, "es").Names()
			if len(got) != len(tt.want) {
				t.Fatalf("names = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("names = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestWeekdaySetAllows_EnglishAndLocaleNames(t *testing.T) {
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

	english := ParseAvailableDays("{MONDAY,wednesday}", "es")
	if !english.Allows(monday) || !english.Allows(wednesday) {
		t.Fatalf("english names must match case-insensitively")
	}
	if english.Allows(sunday) {
		t.Fatalf("sunday must not be allowed")
	}

	spanish := ParseAvailableDays("{Lunes,Miércoles}", "es_CO")
	if !spanish.Allows(monday) || !spanish.Allows(wednesday) {
		t.Fatalf("locale names must match")
	}
	if spanish.Allows(sunday) {
		t.Fatalf("sunday must not be allowed")
	}

	noLocale := ParseAvailableDays("{Lunes}", "en")
	if noLocale.Allows(monday) {
		t.Fatalf("spanish names must not match without the spanish locale")
	}
}

func TestWithinBusinessHours(t *testing.T) {
	cases := map[string]bool{
		"07:59": false,
		"08:00": true,
		"17:59": true,
		"18:00": false,
	}
	for clock, want := range cases {
		ts, err := time.Parse("15:04", clock)
		if err != nil {
			t.Fatalf("parse %s: %v", clock, err)
		}
		if got := WithinBusinessHours(ts); got != want {
			t.Fatalf("WithinBusinessHours(%s) = %v, want %v", clock, got, want)
		}
	}
}

func TestAvailabilityBookingKey_IgnoresSecondsAndZone(t *testing.T) {
	loc, err := LoadClinicLocation(DefaultClinicTimezone)
	if err != nil {
		t.Fatalf("LoadClinicLocation error: %v", err)
	}
	a := Availability{Location: loc}

	local := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	utc := time.Date(2026, 3, 2, 14, 0, 30, 0, time.UTC)

	if a.BookingKey(local) != a.BookingKey(utc) {
		t.Fatalf("keys differ: %s vs %s", a.BookingKey(local), a.BookingKey(utc))
	}
	if a.BookingKey(local) != "2026-03-02 09:00" {
		t.Fatalf("key = %s, want 2026-03-02 09:00", a.BookingKey(local))
	}
}

func TestAppointmentStatusValid(t *testing.T) {
	for _, s := range []AppointmentStatus{"scheduled", "confirmed", "canceled", "rejected", "completed"} {
		if !s.Valid() {
			t.Fatalf("%s must be valid", s)
		}
	}
	if AppointmentStatus("pending").Valid() {
		t.Fatalf("pending must be invalid")
	}
}
