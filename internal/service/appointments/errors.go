package appointments

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrForbidden = errors.New("appointment belongs to another doctor")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// BookingConflict rejects a timestamp the doctor cannot take: already
// reserved, outside the configured days or hours, or outside the shift.
type BookingConflict struct {
	Reason string
}

func (e *BookingConflict) Error() string {
	return e.Reason
}

func bookingConflict(reason string) error {
	return &BookingConflict{Reason: reason}
}

const (
	reasonSlotReserved = "Este horario ya está reservado. Por favor selecciona otro."
	reasonOutsideHours = "Las citas solo están disponibles entre las 8:00 AM y 6:00 PM."
	reasonOutsideShift = "La cita está fuera del turno asignado para este doctor."
	reasonPastDate     = "La cita debe ser programada para una fecha futura."
	reasonDaysPrefix   = "Las citas solo están disponibles los siguientes días: "
)

var tagMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"max":      "must be at most %s characters",
	"gt":       "must be greater than %s",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fromValidator reports the first failing field in the form "field message".
func fromValidator(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return err
	}
	first := vErrs[0]
	msg, ok := tagMessages[first.Tag()]
	if !ok {
		msg = "is invalid"
	}
	if strings.Contains(msg, "%s") {
		msg = strings.Replace(msg, "%s", first.Param(), 1)
	}
	return validationError(first.Field() + " " + msg)
}
