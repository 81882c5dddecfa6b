package slots

import (
	"context"
	"log/slog"
	"time"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/service/shifts"
)

type AppointmentReader interface {
	ListForDoctor(ctx context.Context, doctorID int64, from, to time.Time, excluded ...domain.AppointmentStatus) ([]domain.Appointment, error)
}

// ShiftScope hands out a resolver whose cache lives for one generation call.
type ShiftScope interface {
	WithCache() shifts.Resolver
}

type Generator struct {
	appointments AppointmentReader
	shifts       ShiftScope
	availability domain.Availability
	log          *slog.Logger
	now          func() time.Time
}

type Option func(*Generator)

// WithClock overrides the clock used to drop past available slots.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

func NewGenerator(appointments AppointmentReader, shifts ShiftScope, availability domain.Availability, log *slog.Logger, opts ...Option) *Generator {
	if log == nil {
		log = slog.Default()
	}
	g := &Generator{
		appointments: appointments,
		shifts:       shifts,
		availability: availability,
		log:          log.With(slog.String("component", "slots")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Availability() domain.Availability {
	return g.availability
}

// GenerateSlots expands [rangeStart, rangeEnd] into the doctor's slots in
// chronological order. Booked slots are always returned; available ones only
// when they start after now. On failure no slots are returned.
func (g *Generator) GenerateSlots(ctx context.Context, doctorID int64, rangeStart, rangeEnd time.Time) ([]domain.Slot, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, &InvalidRangeError{Start: rangeStart, End: rangeEnd}
	}

	start := g.availability.Local(rangeStart)
	end := g.availability.Local(rangeEnd)

	out, days, err := g.generate(ctx, doctorID, start, end)
	if err != nil {
		g.log.Error(
			"slot generation failed",
			slog.Any("err", err),
			slog.Int64("doctor_id", doctorID),
			slog.Time("range_start", rangeStart),
			slog.Time("range_end", rangeEnd),
		)
		return nil, &SlotGenerationError{DoctorID: doctorID, Err: err}
	}

	g.log.Debug(
		"slots generated",
		slog.Int64("doctor_id", doctorID),
		slog.Int("count", len(out)),
		slog.Int("days", days),
		slog.Time("range_start", rangeStart),
		slog.Time("range_end", rangeEnd),
	)
	return out, nil
}

func (g *Generator) generate(ctx context.Context, doctorID int64, start, end time.Time) ([]domain.Slot, int, error) {
	a := g.availability

	appts, err := g.appointments.ListForDoctor(ctx, doctorID, a.StartOfDay(start), a.EndOfDay(end), domain.AppointmentStatusRejected)
	if err != nil {
		return nil, 0, err
	}
	booked := make(map[string]domain.Appointment, len(appts))
	for _, appt := range appts {
		booked[a.BookingKey(appt.AppointmentDate)] = appt
	}

	now := g.now()
	resolver := g.shifts.WithCache()
	duration := a.Duration()
	lastDay := a.StartOfDay(end)

	var out []domain.Slot
	days := 0
	for day := a.StartOfDay(start); !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		days++
		if !a.Days.Allows(day) {
			continue
		}
		shift, ok, err := resolver.ShiftForDate(ctx, doctorID, day)
		if err != nil {
			return nil, days, err
		}
		if !ok {
			continue
		}

		for slotStart := shift.Start; slotStart.Before(shift.End); slotStart = slotStart.Add(duration) {
			slotEnd := slotStart.Add(duration)
			if slotEnd.After(shift.End) && !a.AllowPartialFinalSlot {
				break
			}

			if appt, ok := booked[a.BookingKey(slotStart)]; ok {
				out = append(out, domain.Slot{
					Start:             slotStart,
					End:               slotEnd,
					Type:              domain.SlotTypeBooked,
					DoctorID:          doctorID,
					AppointmentID:     appt.ID,
					AppointmentDoctor: appt.DoctorID,
					PatientName:       appt.PatientName,
					Status:            appt.Status,
				})
				continue
			}
			if slotStart.After(now) {
				out = append(out, domain.Slot{
					Start:    slotStart,
					End:      slotEnd,
					Type:     domain.SlotTypeAvailable,
					DoctorID: doctorID,
				})
			}
		}
	}
	return out, days, nil
}
