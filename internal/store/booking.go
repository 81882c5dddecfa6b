package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medsched/backend/internal/domain"
)

// BookingTx is the set of writes performed while a doctor's timestamp is
// locked.
type BookingTx interface {
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	SlotTaken(ctx context.Context, doctorID int64, at time.Time, except uuid.UUID) (bool, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
