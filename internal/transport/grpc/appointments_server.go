package grpc

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/service/appointments"
	"medsched/backend/internal/service/slots"
	"medsched/backend/internal/store"
)

type slotGenerator interface {
	GenerateSlots(ctx context.Context, doctorID int64, rangeStart, rangeEnd time.Time) ([]domain.Slot, error)
}

type shiftResolver interface {
	ShiftForDate(ctx context.Context, doctorID int64, day time.Time) (domain.ShiftInstance, bool, error)
}

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Confirm(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
	Reject(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
}

type AppointmentsServer struct {
	slots  slotGenerator
	shifts shiftResolver
	svc    appointmentsService
	log    *slog.Logger
}

func NewAppointmentsServer(slots slotGenerator, shifts shiftResolver, svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		slots:  slots,
		shifts: shifts,
		svc:    svc,
		log:    log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) GenerateSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GenerateSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	doctorID, ok := intField(req, "doctor_id")
	if !ok {
		log.Warn("invalid request", slog.String("reason", "missing_doctor_id"))
		return nil, status.Error(codes.InvalidArgument, "doctor_id is required")
	}
	start, errStart := timeField(req, "range_start")
	end, errEnd := timeField(req, "range_end")
	if errStart != nil || errEnd != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_range"), slog.Int64("doctor_id", doctorID))
		return nil, status.Error(codes.InvalidArgument, "range_start and range_end must be RFC 3339 timestamps")
	}

	got, err := s.slots.GenerateSlots(ctx, doctorID, start, end)
	if err != nil {
		var rErr *slots.InvalidRangeError
		if errors.As(err, &rErr) {
			log.Warn("invalid request", slog.Any("err", err), slog.Int64("doctor_id", doctorID))
			return nil, status.Error(codes.InvalidArgument, rErr.Error())
		}
		log.Error("slot generation failed", slog.Any("err", err), slog.Int64("doctor_id", doctorID))
		return nil, status.Error(codes.Internal, "internal error")
	}

	list := make([]any, 0, len(got))
	for _, sl := range got {
		list = append(list, slotToMap(sl))
	}

	log.Debug("slots generated", slog.Int64("doctor_id", doctorID), slog.Int("count", len(list)))
	return newStruct(map[string]any{"slots": list})
}

func (s *AppointmentsServer) ResolveShift(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ResolveShift"))

	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	doctorID, ok := intField(req, "doctor_id")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "doctor_id is required")
	}
	day, err := timeField(req, "date")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "date must be an RFC 3339 timestamp")
	}

	shift, found, err := s.shifts.ShiftForDate(ctx, doctorID, day)
	if err != nil {
		log.Error("shift resolution failed", slog.Any("err", err), slog.Int64("doctor_id", doctorID))
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !found {
		return newStruct(map[string]any{"has_shift": false})
	}
	return newStruct(map[string]any{
		"has_shift": true,
		"start":     shift.Start.Format(time.RFC3339),
		"end":       shift.End.Format(time.RFC3339),
	})
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	at, err := timeField(req, "appointment_date")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "missing_date"))
		return nil, status.Error(codes.InvalidArgument, "appointment_date must be an RFC 3339 timestamp")
	}
	doctorID, _ := intField(req, "doctor_id")

	appt, err := s.svc.Create(ctx, appointments.CreateInput{
		BookingInput: appointments.BookingInput{
			DoctorID:        doctorID,
			AppointmentDate: at,
			PatientName:     stringField(req, "patient_name"),
			PatientDocument: stringField(req, "patient_document"),
			PatientEmail:    stringField(req, "patient_email"),
			Reason:          stringField(req, "appointment_reason"),
		},
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusFor(log, err, slog.Int64("doctor_id", doctorID))
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.Int64("doctor_id", appt.DoctorID),
		slog.Time("appointment_date", appt.AppointmentDate),
	)
	return newStruct(map[string]any{"appointment": appointmentToMap(appt)})
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *AppointmentsServer) ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "ConfirmAppointment", req, s.svc.Confirm)
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "CancelAppointment", req, s.svc.Cancel)
}

func (s *AppointmentsServer) RejectAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "RejectAppointment", req, s.svc.Reject)
}

func (s *AppointmentsServer) transition(ctx context.Context, rpc string, req *structpb.Struct, fn func(context.Context, int64, uuid.UUID) (domain.Appointment, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(stringField(req, "appointment_id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	doctorID, ok := intField(req, "doctor_id")
	if !ok {
		return nil, status.Error(codes.PermissionDenied, "doctor_id is required")
	}

	appt, err := fn(ctx, doctorID, id)
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("appointment_id", id.String()), slog.Int64("doctor_id", doctorID))
	}
	log.Info("appointment status changed", slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return newStruct(map[string]any{"appointment": appointmentToMap(appt)})
}

func (s *AppointmentsServer) statusFor(log *slog.Logger, err error, attrs ...any) error {
	var (
		vErr *appointments.ValidationError
		cErr *appointments.BookingConflict
	)
	args := append([]any{slog.Any("err", err)}, attrs...)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &cErr):
		log.Info("booking conflict", args...)
		return status.Error(codes.FailedPrecondition, cErr.Error())
	case errors.Is(err, store.ErrSlotTaken):
		log.Info("slot taken", args...)
		return status.Error(codes.Aborted, "slot already taken, pick a different slot")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, appointments.ErrForbidden):
		log.Info("forbidden", args...)
		return status.Error(codes.PermissionDenied, "appointment belongs to another doctor")
	}
	log.Error("request failed", args...)
	return status.Error(codes.Internal, "internal error")
}

func slotToMap(s domain.Slot) map[string]any {
	m := map[string]any{
		"type":      string(s.Type),
		"doctor_id": s.DoctorID,
		"start":     s.Start.Format(time.RFC3339),
		"end":       s.End.Format(time.RFC3339),
	}
	if s.Booked() {
		m["appointment_id"] = s.AppointmentID.String()
		m["patient_name"] = s.PatientName
		m["status"] = string(s.Status)
	}
	return m
}

func appointmentToMap(a domain.Appointment) map[string]any {
	m := map[string]any{
		"id":               a.ID.String(),
		"doctor_id":        a.DoctorID,
		"appointment_date": a.AppointmentDate.UTC().Format(time.RFC3339),
		"status":           string(a.Status),
		"patient_name":     a.PatientName,
		"patient_document": a.PatientDocument,
		"patient_email":    a.PatientEmail,
	}
	if a.Reason != nil {
		m["appointment_reason"] = *a.Reason
	}
	if a.Doctor != nil {
		m["doctor_name"] = a.Doctor.Name
	}
	return m
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// intField accepts a whole number or a numeric string.
func intField(req *structpb.Struct, key string) (int64, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if n <= 0 || n != math.Trunc(n) || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func timeField(req *structpb.Struct, key string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(stringField(req, key)))
}
