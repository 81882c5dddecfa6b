package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/uptrace/bun"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/store"
)

const SpecialtyColumnAuto = "auto"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DoctorRepo reads doctor accounts from the users table. The specialty column
// is fixed at construction.
type DoctorRepo struct {
	db              bun.IDB
	specialtyColumn string
}

func NewDoctorRepo(db bun.IDB, specialtyColumn string) *DoctorRepo {
	return &DoctorRepo{db: db, specialtyColumn: specialtyColumn}
}

func (r *DoctorRepo) SpecialtyColumn() string {
	return r.specialtyColumn
}

func (r *DoctorRepo) Doctor(ctx context.Context, doctorID int64) (domain.Doctor, error) {
	var d domain.Doctor
	err := r.db.NewSelect().
		Model(&d).
		Column("id", "name").
		ColumnExpr("COALESCE(?, '') AS specialty", bun.Ident(r.specialtyColumn)).
		Where("id = ?", doctorID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Doctor{}, store.ErrNotFound
		}
		return domain.Doctor{}, err
	}
	return d, nil
}

func (r *DoctorRepo) Cohort(ctx context.Context, specialty string) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*domain.Doctor)(nil)).
		Column("id").
		Where("? = ?", bun.Ident(r.specialtyColumn), specialty).
		Where("role IN (?)", bun.In(domain.DoctorRoles)).
		OrderExpr("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *DoctorRepo) ListDoctors(ctx context.Context) ([]domain.Doctor, error) {
	var rows []domain.Doctor
	err := r.db.NewSelect().
		Model(&rows).
		Column("id", "name").
		ColumnExpr("COALESCE(?, '') AS specialty", bun.Ident(r.specialtyColumn)).
		Where("role IN (?)", bun.In(domain.DoctorRoles)).
		OrderExpr("specialty ASC, name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ResolveSpecialtyColumn settles the specialty column name once. Deployments
// disagree on the spelling; "auto" probes the users table and prefers
// "speciality" when both exist.
func ResolveSpecialtyColumn(ctx context.Context, db bun.IDB, configured string) (string, error) {
	if configured != "" && configured != SpecialtyColumnAuto {
		if !identPattern.MatchString(configured) {
			return "", fmt.Errorf("invalid specialty column %q", configured)
		}
		return configured, nil
	}

	var columns []string
	err := db.NewRaw(
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = 'users' AND column_name IN (?)",
		bun.In([]string{"speciality", "specialty"}),
	).Scan(ctx, &columns)
	if err != nil {
		return "", err
	}
	return pickSpecialtyColumn(columns), nil
}

func pickSpecialtyColumn(columns []string) string {
	for _, c := range columns {
		if c == "speciality" {
			return c
		}
	}
	return "specialty"
}
