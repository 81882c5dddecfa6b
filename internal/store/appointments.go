package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medsched/backend/internal/domain"
)

// AppointmentRepository is the appointment store used by booking and slot
// generation.
type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	Delete(ctx context.Context, appointmentID uuid.UUID) error

	// ListForDoctor returns appointments in [from, to] whose status is not one
	// of excluded, ordered by appointment_date ascending.
	ListForDoctor(ctx context.Context, doctorID int64, from, to time.Time, excluded ...domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error)

	// ExistsAt reports whether the doctor already has an appointment at exactly
	// at with one of statuses, ignoring the appointment with id except.
	ExistsAt(ctx context.Context, doctorID int64, at time.Time, statuses []domain.AppointmentStatus, except uuid.UUID) (bool, error)
}

// DoctorRoster reads doctor accounts.
type DoctorRoster interface {
	Doctor(ctx context.Context, doctorID int64) (domain.Doctor, error)
	// Cohort lists the ids of doctor-role accounts with specialty, ascending.
	Cohort(ctx context.Context, specialty string) ([]int64, error)
	ListDoctors(ctx context.Context) ([]domain.Doctor, error)
}
