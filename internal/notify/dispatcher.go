package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"medsched/backend/internal/domain"
)

// Dispatcher delivers a rendered payload. Delivery itself happens elsewhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// Notifier decides whether an appointment event produces an email job.
type Notifier struct {
	dispatcher Dispatcher
	location   *time.Location
	log        *slog.Logger
}

func NewNotifier(dispatcher Dispatcher, location *time.Location, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		dispatcher: dispatcher,
		location:   location,
		log:        log.With(slog.String("component", "notify")),
	}
}

// Notify is a no-op when the patient has no email address.
func (n *Notifier) Notify(ctx context.Context, appt domain.Appointment, event Event) error {
	if strings.TrimSpace(appt.PatientEmail) == "" {
		n.log.Debug(
			"notification skipped",
			slog.String("reason", "missing_email"),
			slog.String("appointment_id", appt.ID.String()),
			slog.String("event", string(event)),
		)
		return nil
	}
	return n.dispatcher.Dispatch(ctx, BuildPayload(appt, event, n.location))
}

// LogDispatcher only records the job. Used when no broker is configured.
type LogDispatcher struct {
	log *slog.Logger
}

func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &LogDispatcher{log: log.With(slog.String("component", "notify.log"))}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, p Payload) error {
	d.log.Info(
		"appointment notification",
		slog.String("event", string(p.Event)),
		slog.String("appointment_id", p.AppointmentID.String()),
		slog.String("subject", p.Subject),
		slog.String("appointment_date", p.AppointmentDate),
	)
	return nil
}
