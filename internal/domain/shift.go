package domain

import (
	"fmt"
	"time"
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ShiftTemplate is a working window expressed in time of day only.
type ShiftTemplate struct {
	Start Clock
	End   Clock
}

func (t ShiftTemplate) String() string {
	return t.Start.String() + "-" + t.End.String()
}

// On binds the template to the calendar date of day as seen in loc.
func (t ShiftTemplate) On(day time.Time, loc *time.Location) ShiftInstance {
	d := day.In(loc)
	return ShiftInstance{
		Start: time.Date(d.Year(), d.Month(), d.Day(), t.Start.Hour, t.Start.Minute, 0, 0, loc),
		End:   time.Date(d.Year(), d.Month(), d.Day(), t.End.Hour, t.End.Minute, 0, 0, loc),
	}
}

// ShiftInstance is a template resolved against one concrete date.
type ShiftInstance struct {
	Start time.Time
	End   time.Time
}

func (s ShiftInstance) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

var (
	fullDayPattern = []ShiftTemplate{
		{Start: Clock{8, 0}, End: Clock{18, 0}},
	}
	halfDayPattern = []ShiftTemplate{
		{Start: Clock{8, 0}, End: Clock{13, 0}},
		{Start: Clock{13, 0}, End: Clock{18, 0}},
	}
	rotatingPattern = []ShiftTemplate{
		{Start: Clock{8, 0}, End: Clock{12, 0}},
		{Start: Clock{11, 0}, End: Clock{15, 0}},
		{Start: Clock{14, 0}, End: Clock{18, 0}},
	}
)

// BusinessHours is the clinic-wide window every shift template fits in.
var BusinessHours = ShiftTemplate{Start: Clock{8, 0}, End: Clock{18, 0}}

// TemplateForCohort picks the shift for the doctor at 0-based position in a
// cohort of size doctors. ok is false when position is outside the cohort.
func TemplateForCohort(position, size int) (ShiftTemplate, bool) {
	if size <= 0 || position < 0 || position >= size {
		return ShiftTemplate{}, false
	}
	switch size {
	case 1:
		return fullDayPattern[0], true
	case 2:
		return halfDayPattern[position], true
	default:
		return rotatingPattern[position%len(rotatingPattern)], true
	}
}

// WithinBusinessHours checks the hour of t only, the way the front desk does.
func WithinBusinessHours(t time.Time) bool {
	h := t.Hour()
	return h >= BusinessHours.Start.Hour && h < BusinessHours.End.Hour
}
