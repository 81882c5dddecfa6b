package domain

import (
	"time"

	"github.com/google/uuid"
)

type SlotType string

const (
	SlotTypeAvailable SlotType = "available"
	SlotTypeBooked    SlotType = "booked"
)

// Slot is one candidate appointment window. Booked slots carry the
// appointment occupying it.
type Slot struct {
	Start    time.Time
	End      time.Time
	Type     SlotType
	DoctorID int64

	AppointmentID     uuid.UUID
	AppointmentDoctor int64
	PatientName       string
	Status            AppointmentStatus
}

func (s Slot) Booked() bool {
	return s.Type == SlotTypeBooked
}
