package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/service/appointments"
	"medsched/backend/internal/service/calendar"
	"medsched/backend/internal/service/slots"
	"medsched/backend/internal/store"
)

const (
	HeaderDoctorID       = "X-Doctor-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type slotGenerator interface {
	GenerateSlots(ctx context.Context, doctorID int64, rangeStart, rangeEnd time.Time) ([]domain.Slot, error)
}

type appointmentService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Update(ctx context.Context, in appointments.UpdateInput) (domain.Appointment, error)
	Get(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
	Delete(ctx context.Context, appointmentID uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	Confirm(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
	Reject(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)
}

type calendarViewer interface {
	View(ctx context.Context) (calendar.View, error)
}

type Handler struct {
	slots    slotGenerator
	appts    appointmentService
	calendar calendarViewer
	location *time.Location
	log      *slog.Logger
}

func NewHandler(slots slotGenerator, appts appointmentService, cal calendarViewer, location *time.Location, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		slots:    slots,
		appts:    appts,
		calendar: cal,
		location: location,
		log:      log.With(slog.String("component", "http.appointments")),
	}
}

// NewEcho builds the echo instance with the JSON serializer and routes.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	h.RegisterRoutes(e.Group(""))
	return e
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/appointments/available-slots", h.AvailableSlots)
	g.GET("/appointments/calendar", h.Calendar)
	g.POST("/appointments", h.CreateAppointment)
	g.GET("/appointments/:id", h.GetAppointment)
	g.PUT("/appointments/:id", h.UpdateAppointment)
	g.DELETE("/appointments/:id", h.DeleteAppointment)
	g.PATCH("/appointments/:id/confirm", h.ConfirmAppointment)
	g.PATCH("/appointments/:id/cancel", h.CancelAppointment)
	g.PATCH("/appointments/:id/reject", h.RejectAppointment)
	g.GET("/doctors/:id/appointments", h.ListDoctorAppointments)
}

type slotProps struct {
	Type     domain.SlotType `json:"type"`
	DoctorID int64           `json:"doctorId"`
	UserID   *int64          `json:"userId,omitempty"`
	Status   string          `json:"status,omitempty"`
}

type slotResponse struct {
	ID            string    `json:"id,omitempty"`
	Title         string    `json:"title"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	ExtendedProps slotProps `json:"extendedProps"`
}

func toSlotResponse(s domain.Slot) slotResponse {
	out := slotResponse{
		Title: "Disponible",
		Start: s.Start.Format(domain.SlotTimestampLayout),
		End:   s.End.Format(domain.SlotTimestampLayout),
		ExtendedProps: slotProps{
			Type:     s.Type,
			DoctorID: s.DoctorID,
		},
	}
	if s.Booked() {
		userID := s.AppointmentDoctor
		out.ID = s.AppointmentID.String()
		out.Title = "Reservado - " + s.PatientName
		out.ExtendedProps.UserID = &userID
		out.ExtendedProps.Status = string(s.Status)
	}
	return out
}

// AvailableSlots handles GET /appointments/available-slots?start=&end=&user_id=.
func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := parseDoctorID(firstNonEmpty(c.QueryParam("user_id"), c.QueryParam("doctor_id")))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("user_id is required"))
	}
	start, err := parseTime(c.QueryParam("start"), time.UTC)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("start must be a date"))
	}
	end, err := parseTime(c.QueryParam("end"), time.UTC)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("end must be a date"))
	}

	got, err := h.slots.GenerateSlots(c.Request().Context(), doctorID, start, end)
	if err != nil {
		return h.fail(c, err, slog.Int64("doctor_id", doctorID))
	}

	out := make([]slotResponse, 0, len(got))
	for _, s := range got {
		out = append(out, toSlotResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

// Calendar handles GET /appointments/calendar.
func (h *Handler) Calendar(c echo.Context) error {
	view, err := h.calendar.View(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

type bookingRequest struct {
	DoctorID          *int64  `json:"doctor_id"`
	UserID            *int64  `json:"user_id"`
	PatientName       *string `json:"patient_name"`
	PatientDocument   *string `json:"patient_document"`
	PatientEmail      *string `json:"patient_email"`
	AppointmentReason *string `json:"appointment_reason"`
	AppointmentDate   *string `json:"appointment_date"`
	Status            *string `json:"status"`
}

func (r bookingRequest) doctorID() *int64 {
	if r.DoctorID != nil {
		return r.DoctorID
	}
	return r.UserID
}

type appointmentEnvelope struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Appointment *domain.Appointment `json:"appointment,omitempty"`
}

// CreateAppointment handles POST /appointments.
func (h *Handler) CreateAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(bindMessage(err)))
	}

	in := appointments.CreateInput{
		BookingInput: appointments.BookingInput{
			PatientName:     deref(req.PatientName),
			PatientDocument: deref(req.PatientDocument),
			PatientEmail:    deref(req.PatientEmail),
			Reason:          deref(req.AppointmentReason),
		},
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	}
	if id := req.doctorID(); id != nil {
		in.DoctorID = *id
	}
	if req.AppointmentDate != nil {
		at, err := parseTime(*req.AppointmentDate, h.location)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_date must be a date"))
		}
		in.AppointmentDate = at
	}

	appt, err := h.appts.Create(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err, slog.Int64("doctor_id", in.DoctorID))
	}

	h.log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.Int64("doctor_id", appt.DoctorID),
		slog.Time("appointment_date", appt.AppointmentDate),
	)
	return c.JSON(http.StatusCreated, appointmentEnvelope{Success: true, Message: "Cita creada exitosamente", Appointment: &appt})
}

// GetAppointment handles GET /appointments/:id for the owning doctor.
func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_id must be a UUID"))
	}
	doctorID, _ := parseDoctorID(c.Request().Header.Get(HeaderDoctorID))

	appt, err := h.appts.Get(c.Request().Context(), doctorID, id)
	if err != nil {
		return h.fail(c, err, slog.String("appointment_id", id.String()))
	}
	return c.JSON(http.StatusOK, appt)
}

// UpdateAppointment handles PUT /appointments/:id. Absent fields keep their value.
func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_id must be a UUID"))
	}
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(bindMessage(err)))
	}

	in := appointments.UpdateInput{
		ID:              id,
		DoctorID:        req.doctorID(),
		PatientName:     req.PatientName,
		PatientDocument: req.PatientDocument,
		PatientEmail:    req.PatientEmail,
		Reason:          req.AppointmentReason,
	}
	if req.AppointmentDate != nil {
		at, err := parseTime(*req.AppointmentDate, h.location)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_date must be a date"))
		}
		in.AppointmentDate = &at
	}
	if req.Status != nil {
		status := domain.AppointmentStatus(strings.TrimSpace(*req.Status))
		in.Status = &status
	}

	appt, err := h.appts.Update(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err, slog.String("appointment_id", id.String()))
	}
	return c.JSON(http.StatusOK, appointmentEnvelope{Success: true, Message: "Cita actualizada exitosamente", Appointment: &appt})
}

// DeleteAppointment handles DELETE /appointments/:id.
func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_id must be a UUID"))
	}
	if err := h.appts.Delete(c.Request().Context(), id); err != nil {
		return h.fail(c, err, slog.String("appointment_id", id.String()))
	}
	h.log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return c.JSON(http.StatusOK, appointmentEnvelope{Success: true, Message: "Cita eliminada exitosamente"})
}

func (h *Handler) ConfirmAppointment(c echo.Context) error {
	return h.transition(c, h.appts.Confirm, "Cita confirmada exitosamente")
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	return h.transition(c, h.appts.Cancel, "Cita cancelada exitosamente")
}

func (h *Handler) RejectAppointment(c echo.Context) error {
	return h.transition(c, h.appts.Reject, "Cita rechazada exitosamente")
}

type transitionFunc func(ctx context.Context, doctorID int64, appointmentID uuid.UUID) (domain.Appointment, error)

func (h *Handler) transition(c echo.Context, fn transitionFunc, message string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("appointment_id must be a UUID"))
	}
	doctorID, err := parseDoctorID(c.Request().Header.Get(HeaderDoctorID))
	if err != nil {
		return c.JSON(http.StatusForbidden, errorBody("doctor identity is required"))
	}

	appt, err := fn(c.Request().Context(), doctorID, id)
	if err != nil {
		return h.fail(c, err, slog.String("appointment_id", id.String()), slog.Int64("doctor_id", doctorID))
	}
	return c.JSON(http.StatusOK, appointmentEnvelope{Success: true, Message: message, Appointment: &appt})
}

// ListDoctorAppointments handles GET /doctors/:id/appointments, newest first.
func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	doctorID, err := parseDoctorID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody("doctor id must be a positive integer"))
	}
	rows, err := h.appts.ListByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return h.fail(c, err, slog.Int64("doctor_id", doctorID))
	}
	if rows == nil {
		rows = []domain.Appointment{}
	}
	return c.JSON(http.StatusOK, rows)
}

// fail maps service errors onto status codes. Only unexpected failures are
// logged at error level.
func (h *Handler) fail(c echo.Context, err error, attrs ...any) error {
	code, msg := classify(err)
	args := append([]any{slog.Any("err", err), slog.String("path", c.Path())}, attrs...)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", args...)
	} else {
		h.log.Info("request rejected", append(args, slog.Int("status", code))...)
	}
	return c.JSON(code, errorBody(msg))
}

func classify(err error) (int, string) {
	var (
		vErr     *appointments.ValidationError
		cErr     *appointments.BookingConflict
		rangeErr *slots.InvalidRangeError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, vErr.Error()
	case errors.As(err, &cErr):
		return http.StatusUnprocessableEntity, cErr.Error()
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest, rangeErr.Error()
	case errors.Is(err, store.ErrSlotTaken):
		return http.StatusConflict, "Este horario ya está reservado. Por favor selecciona otro."
	case errors.Is(err, store.ErrIdempotencyConflict):
		return http.StatusConflict, "This request key was already used for a different appointment."
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "appointment not found"
	case errors.Is(err, appointments.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, err.Error()
}

// bindMessage keeps the decoder's reason but drops echo's error wrapper.
func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && msg != "" {
			return msg
		}
	}
	return "invalid request body"
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func parseDoctorID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("doctor id must be positive")
	}
	return id, nil
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime accepts RFC 3339 or a zone-less layout read in loc.
func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
