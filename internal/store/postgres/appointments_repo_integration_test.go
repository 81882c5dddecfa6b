package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/store"
)

func TestPostgresIntegration_BookingRosterAndSlotExclusivity(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("MEDSCHED_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("MEDSCHED_TEST_DATABASE_URL not set")
	}

	db, err := Open(context.Background(), databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "medsched_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		for _, stmt := range []string{
			"INSERT INTO users (id, name, email, role, speciality) VALUES (4, 'Dra. Ruiz', 'ruiz@example.com', 'doctor', 'cardiology')",
			"INSERT INTO users (id, name, email, role, speciality) VALUES (2, 'Dr. Gomez', 'gomez@example.com', 'doctor_s', 'cardiology')",
			"INSERT INTO users (id, name, email, role, speciality) VALUES (9, 'Admin', 'admin@example.com', 'admin', 'cardiology')",
			"INSERT INTO users (id, name, email, role, speciality) VALUES (5, 'Dr. Pardo', 'pardo@example.com', 'doctor', NULL)",
		} {
			if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}

		column, err := ResolveSpecialtyColumn(ctx, tx, SpecialtyColumnAuto)
		if err != nil {
			return err
		}
		if column != "speciality" {
			return fmt.Errorf("specialty column = %q, want %q", column, "speciality")
		}

		doctors := NewDoctorRepo(tx, column)
		cohort, err := doctors.Cohort(ctx, "cardiology")
		if err != nil {
			return err
		}
		if len(cohort) != 2 || cohort[0] != 2 || cohort[1] != 4 {
			return fmt.Errorf("cohort = %v, want [2 4]", cohort)
		}
		pardo, err := doctors.Doctor(ctx, 5)
		if err != nil {
			return err
		}
		if pardo.Specialty != "" {
			return fmt.Errorf("specialty = %q, want empty", pardo.Specialty)
		}
		if _, err := doctors.Doctor(ctx, 404); err != store.ErrNotFound {
			return fmt.Errorf("missing doctor err = %v, want %v", err, store.ErrNotFound)
		}

		repo := NewAppointmentRepo(tx)
		at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

		a1, err := repo.Create(ctx, domain.Appointment{
			ID:              uuid.MustParse("00000000-0000-0000-0000-000000000901"),
			DoctorID:        4,
			AppointmentDate: at,
			Status:          domain.AppointmentStatusScheduled,
			PatientName:     "Ana",
			PatientDocument: "123",
			PatientEmail:    "ana@example.com",
		})
		if err != nil {
			return err
		}

		rows, err := repo.ListForDoctor(ctx, 4, at.Add(-time.Hour), at.Add(time.Hour), domain.AppointmentStatusRejected)
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].ID != a1.ID {
			return fmt.Errorf("listed rows = %v, want [%s]", rows, a1.ID)
		}

		_, err = repo.Create(ctx, domain.Appointment{
			DoctorID:        4,
			AppointmentDate: at,
			Status:          domain.AppointmentStatusScheduled,
			PatientName:     "Luis",
			PatientDocument: "456",
			PatientEmail:    "luis@example.com",
		})
		if err != store.ErrSlotTaken {
			return fmt.Errorf("double booking err = %v, want %v", err, store.ErrSlotTaken)
		}

		replayed, err := repo.Create(ctx, domain.Appointment{
			ID:              a1.ID,
			DoctorID:        4,
			AppointmentDate: at,
			Status:          domain.AppointmentStatusScheduled,
			PatientName:     "Ana",
			PatientDocument: "123",
			PatientEmail:    "ana@example.com",
		})
		if err != nil {
			return err
		}
		if replayed.ID != a1.ID {
			return fmt.Errorf("replayed id = %s, want %s", replayed.ID, a1.ID)
		}

		_, err = repo.Create(ctx, domain.Appointment{
			ID:              a1.ID,
			DoctorID:        4,
			AppointmentDate: at,
			Status:          domain.AppointmentStatusScheduled,
			PatientName:     "Someone else",
			PatientDocument: "123",
			PatientEmail:    "ana@example.com",
		})
		if err != store.ErrIdempotencyConflict {
			return fmt.Errorf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
		}

		a1.Status = domain.AppointmentStatusRejected
		if _, err := repo.Update(ctx, a1); err != nil {
			return err
		}
		taken, err := repo.ExistsAt(ctx, 4, at, domain.BlockingStatuses, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("rejected appointment must free the slot")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
				if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
