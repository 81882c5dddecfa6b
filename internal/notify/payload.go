package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medsched/backend/internal/domain"
)

type Event string

const (
	EventCreated   Event = "created"
	EventConfirmed Event = "confirmed"
	EventCanceled  Event = "canceled"
	EventRejected  Event = "rejected"
)

const fallbackDoctorName = "tu especialista"

type copyText struct {
	subject string
	intro   string
	outro   string
}

var messages = map[Event]copyText{
	EventCreated: {
		subject: "Tu cita fue registrada",
		intro:   "Hemos recibido tu solicitud de cita.",
		outro:   "Si necesitas realizar cambios responde a este correo.",
	},
	EventConfirmed: {
		subject: "Tu cita fue confirmada",
		intro:   "Tu médico ha confirmado la cita programada.",
		outro:   "Te esperamos en la fecha acordada.",
	},
	EventCanceled: {
		subject: "Tu cita fue cancelada",
		intro:   "Tu cita fue cancelada por el consultorio.",
		outro:   "Te invitamos a reagendar tu cita cuando lo requieras.",
	},
	EventRejected: {
		subject: "Tu cita fue rechazada",
		intro:   "Tu médico no pudo aceptar la cita solicitada.",
		outro:   "El espacio quedó disponible para que puedas elegir otro horario.",
	},
}

var statusLabels = map[domain.AppointmentStatus]string{
	domain.AppointmentStatusScheduled: "Programada",
	domain.AppointmentStatusConfirmed: "Confirmada",
	domain.AppointmentStatusCanceled:  "Cancelada",
	domain.AppointmentStatusRejected:  "Rechazada",
	domain.AppointmentStatusCompleted: "Completada",
}

var monthNames = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// Payload is the email job handed to a Dispatcher.
type Payload struct {
	Event           Event     `json:"event"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	To              string    `json:"to"`
	Subject         string    `json:"subject"`
	Intro           string    `json:"intro"`
	Outro           string    `json:"outro"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	StatusText      string    `json:"status_text"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentAt   time.Time `json:"appointment_at"`
}

// BuildPayload renders the Spanish copy for event. Unknown events fall back
// to the created copy.
func BuildPayload(appt domain.Appointment, event Event, loc *time.Location) Payload {
	text, ok := messages[event]
	if !ok {
		text = messages[EventCreated]
	}

	doctorName := fallbackDoctorName
	if appt.Doctor != nil && strings.TrimSpace(appt.Doctor.Name) != "" {
		doctorName = appt.Doctor.Name
	}

	return Payload{
		Event:           event,
		AppointmentID:   appt.ID,
		To:              appt.PatientEmail,
		Subject:         text.subject,
		Intro:           text.intro,
		Outro:           text.outro,
		PatientName:     appt.PatientName,
		DoctorName:      doctorName,
		StatusText:      StatusLabel(appt.Status),
		AppointmentDate: FormatLocalizedDate(appt.AppointmentDate, loc),
		AppointmentAt:   appt.AppointmentDate,
	}
}

// StatusLabel returns the Spanish label, or the status capitalized when it
// has none.
func StatusLabel(s domain.AppointmentStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	raw := string(s)
	if raw == "" {
		return ""
	}
	return strings.ToUpper(raw[:1]) + raw[1:]
}

// FormatLocalizedDate renders t as "lunes 2 de marzo de 2026 a las 09:00 a. m."
// in loc.
func FormatLocalizedDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)

	meridiem := "a. m."
	if l.Hour() >= 12 {
		meridiem = "p. m."
	}
	hour := l.Hour() % 12
	if hour == 0 {
		hour = 12
	}

	return fmt.Sprintf(
		"%s %d de %s de %d a las %02d:%02d %s",
		domain.LocalizedWeekday(l.Weekday(), "es"),
		l.Day(),
		monthNames[l.Month()-1],
		l.Year(),
		hour,
		l.Minute(),
		meridiem,
	)
}
