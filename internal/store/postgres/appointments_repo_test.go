package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/store"
)

type fakeBookingTx struct {
	slotTakenFn func(ctx context.Context, doctorID int64, at time.Time, except uuid.UUID) (bool, error)
}

func (f *fakeBookingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	panic("not used")
}

func (f *fakeBookingTx) SlotTaken(ctx context.Context, doctorID int64, at time.Time, except uuid.UUID) (bool, error) {
	if f.slotTakenFn == nil {
		return false, nil
	}
	return f.slotTakenFn(ctx, doctorID, at, except)
}

func (f *fakeBookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("not used")
}

func (f *fakeBookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("not used")
}

func TestEnsureSlotFree(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	self := uuid.MustParse("00000000-0000-0000-0000-000000000101")

	t.Run("free slot passes", func(t *testing.T) {
		tx := &fakeBookingTx{}
		if err := ensureSlotFree(context.Background(), tx, 7, at, uuid.Nil); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	})

	t.Run("taken slot reports ErrSlotTaken", func(t *testing.T) {
		tx := &fakeBookingTx{
			slotTakenFn: func(ctx context.Context, doctorID int64, got time.Time, except uuid.UUID) (bool, error) {
				return doctorID == 7 && got.Equal(at), nil
			},
		}
		if err := ensureSlotFree(context.Background(), tx, 7, at, uuid.Nil); !errors.Is(err, store.ErrSlotTaken) {
			t.Fatalf("err = %v, want %v", err, store.ErrSlotTaken)
		}
	})

	t.Run("passes the excluded id through", func(t *testing.T) {
		var gotExcept uuid.UUID
		tx := &fakeBookingTx{
			slotTakenFn: func(ctx context.Context, doctorID int64, got time.Time, except uuid.UUID) (bool, error) {
				gotExcept = except
				return false, nil
			},
		}
		if err := ensureSlotFree(context.Background(), tx, 7, at, self); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if gotExcept != self {
			t.Fatalf("except = %s, want %s", gotExcept, self)
		}
	})

	t.Run("lookup errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		tx := &fakeBookingTx{
			slotTakenFn: func(ctx context.Context, doctorID int64, got time.Time, except uuid.UUID) (bool, error) {
				return false, boom
			},
		}
		if err := ensureSlotFree(context.Background(), tx, 7, at, uuid.Nil); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	})
}

func TestMapWriteError(t *testing.T) {
	slotErr := &pgconn.PgError{Code: "23505", ConstraintName: slotUniqueConstraint}
	if err := mapWriteError(fmt.Errorf("insert: %w", slotErr)); !errors.Is(err, store.ErrSlotTaken) {
		t.Fatalf("err = %v, want %v", err, store.ErrSlotTaken)
	}

	pkErr := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}
	if err := mapWriteError(pkErr); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	other := errors.New("connection reset")
	if err := mapWriteError(other); err != other {
		t.Fatalf("err = %v, want %v", err, other)
	}
}

func TestSameBooking(t *testing.T) {
	reason := "control"
	base := domain.Appointment{
		DoctorID:        3,
		AppointmentDate: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		PatientName:     "Ana",
		PatientDocument: "123",
		PatientEmail:    "ana@example.com",
		Reason:          &reason,
	}

	same := base
	otherReason := "control"
	same.Reason = &otherReason
	same.AppointmentDate = base.AppointmentDate.In(time.FixedZone("-05", -5*3600))
	if !sameBooking(base, same) {
		t.Fatalf("identical bookings must match")
	}

	moved := base
	moved.AppointmentDate = base.AppointmentDate.Add(20 * time.Minute)
	if sameBooking(base, moved) {
		t.Fatalf("different times must not match")
	}

	noReason := base
	noReason.Reason = nil
	if sameBooking(base, noReason) {
		t.Fatalf("missing reason must not match")
	}
}

func TestBlocksSlot(t *testing.T) {
	for _, s := range domain.BlockingStatuses {
		if !blocksSlot(s) {
			t.Fatalf("%s must block the slot", s)
		}
	}
	if blocksSlot(domain.AppointmentStatusRejected) || blocksSlot(domain.AppointmentStatusCompleted) {
		t.Fatalf("rejected and completed must not block the slot")
	}
}

func TestPickSpecialtyColumn(t *testing.T) {
	tests := []struct {
		columns []string
		want    string
	}{
		{columns: []string{"speciality"}, want: "speciality"},
		{columns: []string{"specialty"}, want: "specialty"},
		{columns: []string{"specialty", "speciality"}, want: "speciality"},
		{columns: nil, want: "specialty"},
	}
	for _, tt := range tests {
		if got := pickSpecialtyColumn(tt.columns); got != tt.want {
			t.Fatalf("pickSpecialtyColumn(%v) = %q, want %q", tt.columns, got, tt.want)
		}
	}
}

func TestResolveSpecialtyColumn_ConfiguredValue(t *testing.T) {
	got, err := ResolveSpecialtyColumn(context.Background(), nil, "specialty")
	if err != nil {
		t.Fatalf("ResolveSpecialtyColumn error: %v", err)
	}
	if got != "specialty" {
		t.Fatalf("column = %q, want %q", got, "specialty")
	}

	if _, err := ResolveSpecialtyColumn(context.Background(), nil, "specialty; DROP TABLE users"); err == nil {
		t.Fatalf("expected error for unsafe column name")
	}
}
