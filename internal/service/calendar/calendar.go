package calendar

import (
	"context"
	"time"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/service/shifts"
)

type doctorLister interface {
	ListDoctors(ctx context.Context) ([]domain.Doctor, error)
}

type ShiftScope interface {
	WithCache() shifts.Resolver
}

// DoctorShift is a doctor with the shift they work on the reference day.
type DoctorShift struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Specialty string  `json:"speciality"`
	Shift     *Window `json:"shift"`
}

type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SpecialtyGroup struct {
	Specialty string        `json:"speciality"`
	Doctors   []DoctorShift `json:"doctors"`
}

type View struct {
	DaysAvailable       []string         `json:"daysAvailable"`
	AppointmentDuration int              `json:"appointmentDuration"`
	Doctors             []DoctorShift    `json:"doctors"`
	DoctorsBySpecialty  []SpecialtyGroup `json:"doctorsBySpecialty"`
}

type Service struct {
	doctors      doctorLister
	shifts       ShiftScope
	availability domain.Availability
	now          func() time.Time
}

func NewService(doctors doctorLister, shifts ShiftScope, availability domain.Availability, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{doctors: doctors, shifts: shifts, availability: availability, now: now}
}

// View lists doctors in roster order (specialty, then name) with today's
// shift in the clinic zone, plus the same list grouped by specialty.
func (s *Service) View(ctx context.Context) (View, error) {
	docs, err := s.doctors.ListDoctors(ctx)
	if err != nil {
		return View{}, err
	}

	today := s.availability.Local(s.now())
	resolver := s.shifts.WithCache()

	out := View{
		DaysAvailable:       s.availability.Days.Names(),
		AppointmentDuration: int(s.availability.Duration() / time.Minute),
		Doctors:             make([]DoctorShift, 0, len(docs)),
		DoctorsBySpecialty:  []SpecialtyGroup{},
	}
	groupIndex := make(map[string]int)
	for _, d := range docs {
		entry := DoctorShift{ID: d.ID, Name: d.Name, Specialty: d.Specialty}
		shift, ok, err := resolver.ShiftForDate(ctx, d.ID, today)
		if err != nil {
			return View{}, err
		}
		if ok {
			entry.Shift = &Window{Start: shift.Start.Format("15:04"), End: shift.End.Format("15:04")}
		}
		out.Doctors = append(out.Doctors, entry)

		i, seen := groupIndex[d.Specialty]
		if !seen {
			i = len(out.DoctorsBySpecialty)
			groupIndex[d.Specialty] = i
			out.DoctorsBySpecialty = append(out.DoctorsBySpecialty, SpecialtyGroup{Specialty: d.Specialty})
		}
		out.DoctorsBySpecialty[i].Doctors = append(out.DoctorsBySpecialty[i].Doctors, entry)
	}
	return out, nil
}
