package domain

import (
	"time"
	_ "time/tzdata"
)

const (
	DefaultClinicTimezone  = "America/Bogota"
	DefaultSlotDuration    = 20 * time.Minute
	DefaultLocale          = "es"
	SlotTimestampLayout    = "2006-01-02 15:04:05"
	bookingIndexKeyLayout  = "2006-01-02 15:04"
	bogotaFallbackOffset   = -5 * 60 * 60
	bogotaFallbackZoneName = "-05"
)

// LoadClinicLocation resolves the clinic zone. Bogota has no DST, so a fixed
// offset is an exact stand-in when the zone database cannot be read.
func LoadClinicLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultClinicTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultClinicTimezone {
			return time.FixedZone(bogotaFallbackZoneName, bogotaFallbackOffset), nil
		}
		return nil, err
	}
	return loc, nil
}

// Availability is the resolved clinic configuration consumed by the shift
// allocator, the slot generator and booking validation.
type Availability struct {
	Location              *time.Location
	SlotDuration          time.Duration
	Days                  WeekdaySet
	AllowPartialFinalSlot bool
}

func (a Availability) location() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

func (a Availability) Duration() time.Duration {
	if a.SlotDuration <= 0 {
		return DefaultSlotDuration
	}
	return a.SlotDuration
}

func (a Availability) Local(t time.Time) time.Time {
	return t.In(a.location())
}

func (a Availability) StartOfDay(t time.Time) time.Time {
	l := t.In(a.location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, a.location())
}

func (a Availability) EndOfDay(t time.Time) time.Time {
	l := t.In(a.location())
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, 0, a.location())
}

// BookingKey is the index key for an appointment timestamp: local time at
// minute precision.
func (a Availability) BookingKey(t time.Time) string {
	return t.In(a.location()).Format(bookingIndexKeyLayout)
}
