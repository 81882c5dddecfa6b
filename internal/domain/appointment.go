package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCanceled  AppointmentStatus = "canceled"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled,
		AppointmentStatusConfirmed,
		AppointmentStatusCanceled,
		AppointmentStatusRejected,
		AppointmentStatusCompleted:
		return true
	}
	return false
}

// BlockingStatuses are the statuses that keep a timestamp reserved for new bookings.
var BlockingStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusCanceled,
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	DoctorID        int64             `bun:"doctor_id,notnull" json:"doctor_id"`
	AppointmentDate time.Time         `bun:"appointment_date,notnull" json:"appointment_date"`
	Status          AppointmentStatus `bun:"status,notnull" json:"status"`
	PatientName     string            `bun:"patient_name,notnull" json:"patient_name"`
	PatientDocument string            `bun:"patient_document,notnull" json:"patient_document"`
	PatientEmail    string            `bun:"patient_email,notnull" json:"patient_email"`
	Reason          *string           `bun:"appointment_reason" json:"appointment_reason,omitempty"`
	CreatedAt       time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time         `bun:"updated_at,notnull" json:"updated_at"`

	Doctor *Doctor `bun:"-" json:"doctor,omitempty"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
