package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/store"
)

const slotUniqueConstraint = "appointments_doctor_slot_key"

type AppointmentRepo struct {
	db bun.IDB
}

func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InSlotTransaction(ctx, appt.DoctorID, appt.AppointmentDate, func(ctx context.Context, tx store.BookingTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		if err := ensureSlotFree(ctx, tx, appt.DoctorID, appt.AppointmentDate, uuid.Nil); err != nil {
			return err
		}
		a, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InSlotTransaction(ctx, appt.DoctorID, appt.AppointmentDate, func(ctx context.Context, tx store.BookingTx) error {
		if blocksSlot(appt.Status) {
			if err := ensureSlotFree(ctx, tx, appt.DoctorID, appt.AppointmentDate, appt.ID); err != nil {
				return err
			}
		}
		a, err := tx.UpdateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, appointmentID)
}

func (r *AppointmentRepo) Delete(ctx context.Context, appointmentID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepo) ListForDoctor(ctx context.Context, doctorID int64, from, to time.Time, excluded ...domain.AppointmentStatus) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Where("appointment_date >= ?", from).
		Where("appointment_date <= ?", to)
	if len(excluded) > 0 {
		q = q.Where("status NOT IN (?)", bun.In(excluded))
	}
	if err := q.OrderExpr("appointment_date ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		OrderExpr("appointment_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ExistsAt(ctx context.Context, doctorID int64, at time.Time, statuses []domain.AppointmentStatus, except uuid.UUID) (bool, error) {
	return slotExists(ctx, r.db, doctorID, at, statuses, except)
}

// InSlotTransaction serializes writers competing for one doctor timestamp.
func (r *AppointmentRepo) InSlotTransaction(ctx context.Context, doctorID int64, at time.Time, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDoctorSlot(ctx, tx, doctorID, at); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockDoctorSlot(ctx context.Context, tx bun.Tx, doctorID int64, at time.Time) error {
	key := fmt.Sprintf("appointment:%d:%d", doctorID, at.UTC().Unix())
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (r bookingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.tx, appointmentID)
}

func (r bookingTx) SlotTaken(ctx context.Context, doctorID int64, at time.Time, except uuid.UUID) (bool, error) {
	return slotExists(ctx, r.tx, doctorID, at, domain.BlockingStatuses, except)
}

func (r bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Doctor = nil

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Doctor = nil

	res, err := r.tx.NewUpdate().
		Model(&m).
		Column("doctor_id", "appointment_date", "status", "patient_name", "patient_document", "patient_email", "appointment_reason", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return getAppointment(ctx, r.tx, m.ID)
}

func getAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func slotExists(ctx context.Context, db bun.IDB, doctorID int64, at time.Time, statuses []domain.AppointmentStatus, except uuid.UUID) (bool, error) {
	q := db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("doctor_id = ?", doctorID).
		Where("appointment_date = ?", at)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	return q.Exists(ctx)
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == slotUniqueConstraint {
			return store.ErrSlotTaken
		}
		return store.ErrIdempotencyConflict
	}
	return err
}

func ensureSlotFree(ctx context.Context, tx store.BookingTx, doctorID int64, at time.Time, except uuid.UUID) error {
	taken, err := tx.SlotTaken(ctx, doctorID, at, except)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrSlotTaken
	}
	return nil
}

func blocksSlot(status domain.AppointmentStatus) bool {
	for _, s := range domain.BlockingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func sameBooking(existing, incoming domain.Appointment) bool {
	return existing.DoctorID == incoming.DoctorID &&
		existing.AppointmentDate.Equal(incoming.AppointmentDate) &&
		existing.PatientName == incoming.PatientName &&
		existing.PatientDocument == incoming.PatientDocument &&
		existing.PatientEmail == incoming.PatientEmail &&
		equalReason(existing.Reason, incoming.Reason)
}

func equalReason(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
