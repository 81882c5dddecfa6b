package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/notify"
	"medsched/backend/internal/store"
)

type doctorLookup interface {
	Doctor(ctx context.Context, doctorID int64) (domain.Doctor, error)
}

type shiftChecker interface {
	IsWithinShift(ctx context.Context, doctorID int64, at time.Time) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, appt domain.Appointment, event notify.Event) error
}

type Service struct {
	repo         store.AppointmentRepository
	doctors      doctorLookup
	shifts       shiftChecker
	notifier     notifier
	availability domain.Availability
	validate     *validator.Validate
	log          *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo store.AppointmentRepository, doctors doctorLookup, shifts shiftChecker, notifier notifier, availability domain.Availability, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo:         repo,
		doctors:      doctors,
		shifts:       shifts,
		notifier:     notifier,
		availability: availability,
		validate:     newValidator(),
		log:          log.With(slog.String("component", "appointments")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookingInput carries the patient-facing fields of an appointment.
type BookingInput struct {
	DoctorID        int64     `json:"doctor_id" validate:"required,gt=0"`
	AppointmentDate time.Time `json:"appointment_date" validate:"required"`
	PatientName     string    `json:"patient_name" validate:"required,max=255"`
	PatientDocument string    `json:"patient_document" validate:"required,max=100"`
	PatientEmail    string    `json:"patient_email" validate:"required,email,max=255"`
	Reason          string    `json:"appointment_reason" validate:"max=1000"`
}

type CreateInput struct {
	BookingInput
	IdempotencyKey string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	b := normalizeBooking(in.BookingInput)
	if err := s.validate.Struct(b); err != nil {
		return domain.Appointment{}, fromValidator(err)
	}

	appt := domain.Appointment{
		DoctorID:        b.DoctorID,
		AppointmentDate: b.AppointmentDate,
		Status:          domain.AppointmentStatusScheduled,
		PatientName:     b.PatientName,
		PatientDocument: b.PatientDocument,
		PatientEmail:    b.PatientEmail,
		Reason:          optionalReason(b.Reason),
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("medsched:create_appointment:"+key))
	}

	// A replayed key must not collide with the row it created.
	if err := s.checkSlot(ctx, b.DoctorID, b.AppointmentDate, appt.ID); err != nil {
		return domain.Appointment{}, err
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		return domain.Appointment{}, err
	}
	created = s.withDoctor(ctx, created)
	s.notify(ctx, created, notify.EventCreated)
	return created, nil
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	ID              uuid.UUID
	DoctorID        *int64
	AppointmentDate *time.Time
	PatientName     *string
	PatientDocument *string
	PatientEmail    *string
	Reason          *string
	Status          *domain.AppointmentStatus
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (domain.Appointment, error) {
	if in.ID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	current, err := s.repo.Get(ctx, in.ID)
	if err != nil {
		return domain.Appointment{}, err
	}

	b := BookingInput{
		DoctorID:        current.DoctorID,
		AppointmentDate: current.AppointmentDate,
		PatientName:     current.PatientName,
		PatientDocument: current.PatientDocument,
		PatientEmail:    current.PatientEmail,
	}
	if current.Reason != nil {
		b.Reason = *current.Reason
	}
	if in.DoctorID != nil {
		b.DoctorID = *in.DoctorID
	}
	if in.AppointmentDate != nil {
		b.AppointmentDate = *in.AppointmentDate
	}
	if in.PatientName != nil {
		b.PatientName = *in.PatientName
	}
	if in.PatientDocument != nil {
		b.PatientDocument = *in.PatientDocument
	}
	if in.PatientEmail != nil {
		b.PatientEmail = *in.PatientEmail
	}
	if in.Reason != nil {
		b.Reason = *in.Reason
	}
	b = normalizeBooking(b)
	if err := s.validate.Struct(b); err != nil {
		return domain.Appointment{}, fromValidator(err)
	}

	status := current.Status
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.Appointment{}, validationError("status is invalid")
		}
		status = *in.Status
	}

	if in.AppointmentDate != nil || in.DoctorID != nil {
		if err := s.checkSlot(ctx, b.DoctorID, b.AppointmentDate, current.ID); err != nil {
			return domain.Appointment{}, err
		}
	}

	next := current
	next.DoctorID = b.DoctorID
	next.AppointmentDate = b.AppointmentDate
	next.PatientName = b.PatientName
	next.PatientDocument = b.PatientDocument
	next.PatientEmail = b.PatientEmail
	next.Reason = optionalReason(b.Reason)
	next.Status = status

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return domain.Appointment{}, err
	}
	return s.withDoctor(ctx, updated), nil
}

func (s *Service) Get(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error) {
	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	return s.withDoctor(ctx, appt), nil
}

func (s *Service) Delete(ctx context.Context, appointmentID uuid.UUID) error {
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.repo.Delete(ctx, appointmentID)
}

// ListByDoctor returns the doctor's appointments, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	if doctorID <= 0 {
		return nil, validationError("doctor_id is required")
	}
	return s.repo.ListByDoctor(ctx, doctorID)
}

func (s *Service) Confirm(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, doctorID, appointmentID, domain.AppointmentStatusConfirmed, notify.EventConfirmed)
}

func (s *Service) Cancel(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, doctorID, appointmentID, domain.AppointmentStatusCanceled, notify.EventCanceled)
}

func (s *Service) Reject(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, doctorID, appointmentID, domain.AppointmentStatusRejected, notify.EventRejected)
}

func (s *Service) transition(ctx context.Context, doctorID int64, appointmentID uuid.UUID, to domain.AppointmentStatus, event notify.Event) (domain.Appointment, error) {
	appt, err := s.owned(ctx, doctorID, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt.Status = to
	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		return domain.Appointment{}, err
	}
	updated = s.withDoctor(ctx, updated)
	s.notify(ctx, updated, event)

	s.log.Info(
		"appointment status changed",
		slog.String("appointment_id", updated.ID.String()),
		slog.Int64("doctor_id", doctorID),
		slog.String("status", string(to)),
	)
	return updated, nil
}

func (s *Service) owned(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if doctorID <= 0 {
		return domain.Appointment{}, ErrForbidden
	}
	appt, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.DoctorID != doctorID {
		return domain.Appointment{}, ErrForbidden
	}
	return appt, nil
}

// checkSlot applies the timestamp rules shared by create and update. except
// is the appointment being edited, if any.
func (s *Service) checkSlot(ctx context.Context, doctorID int64, at time.Time, except uuid.UUID) error {
	if !at.After(s.now()) {
		return bookingConflict(reasonPastDate)
	}

	taken, err := s.repo.ExistsAt(ctx, doctorID, at, domain.BlockingStatuses, except)
	if err != nil {
		return err
	}
	if taken {
		return bookingConflict(reasonSlotReserved)
	}

	local := s.availability.Local(at)
	if !s.availability.Days.Allows(local) {
		return bookingConflict(reasonDaysPrefix + strings.Join(s.availability.Days.Names(), ", "))
	}
	if !domain.WithinBusinessHours(local) {
		return bookingConflict(reasonOutsideHours)
	}

	within, err := s.shifts.IsWithinShift(ctx, doctorID, at)
	if err != nil {
		return err
	}
	if !within {
		return bookingConflict(reasonOutsideShift)
	}
	return nil
}

func (s *Service) withDoctor(ctx context.Context, appt domain.Appointment) domain.Appointment {
	doc, err := s.doctors.Doctor(ctx, appt.DoctorID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("doctor lookup failed", slog.Any("err", err), slog.Int64("doctor_id", appt.DoctorID))
		}
		return appt
	}
	appt.Doctor = &doc
	return appt
}

// notify never fails the request; the change is already stored.
func (s *Service) notify(ctx context.Context, appt domain.Appointment, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, appt, event); err != nil {
		s.log.Error(
			"appointment notification failed",
			slog.Any("err", err),
			slog.String("appointment_id", appt.ID.String()),
			slog.String("event", string(event)),
		)
	}
}

func normalizeBooking(b BookingInput) BookingInput {
	b.PatientName = strings.TrimSpace(b.PatientName)
	b.PatientDocument = strings.TrimSpace(b.PatientDocument)
	b.PatientEmail = strings.TrimSpace(b.PatientEmail)
	b.Reason = strings.TrimSpace(b.Reason)
	// Slots are keyed by minute, so a booking must start on one.
	b.AppointmentDate = b.AppointmentDate.UTC().Truncate(time.Minute)
	return b
}

func optionalReason(r string) *string {
	if r == "" {
		return nil
	}
	return &r
}
