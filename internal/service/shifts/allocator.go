package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medsched/backend/internal/domain"
	"medsched/backend/internal/store"
)

// Roster is the slice of the doctor roster the allocator reads.
type Roster interface {
	Doctor(ctx context.Context, doctorID int64) (domain.Doctor, error)
	Cohort(ctx context.Context, specialty string) ([]int64, error)
}

// Resolver is the read side of the allocator shared by slot generation,
// booking validation and the calendar view.
type Resolver interface {
	ResolveTemplate(ctx context.Context, doctorID int64) (domain.ShiftTemplate, bool, error)
	ShiftForDate(ctx context.Context, doctorID int64, day time.Time) (domain.ShiftInstance, bool, error)
	IsWithinShift(ctx context.Context, doctorID int64, at time.Time) (bool, error)
}

// Allocator derives a doctor's shift from the size of their specialty cohort
// and their position in it. The zero-cache Allocator is safe for concurrent
// use; WithCache returns a memoizing copy meant for a single request.
type Allocator struct {
	roster   Roster
	location *time.Location
	cache    map[int64]cachedTemplate
}

type cachedTemplate struct {
	template domain.ShiftTemplate
	ok       bool
}

func NewAllocator(roster Roster, location *time.Location) *Allocator {
	if location == nil {
		location = time.UTC
	}
	return &Allocator{roster: roster, location: location}
}

// WithCache returns a resolver that remembers resolved templates. The cache
// is not synchronized and must not outlive the request that made it.
func (a *Allocator) WithCache() Resolver {
	return &Allocator{
		roster:   a.roster,
		location: a.location,
		cache:    make(map[int64]cachedTemplate),
	}
}

func (a *Allocator) Location() *time.Location {
	return a.location
}

// ResolveTemplate returns the doctor's time-of-day window. ok is false when
// the doctor is unknown, has no specialty, or is missing from its own cohort.
func (a *Allocator) ResolveTemplate(ctx context.Context, doctorID int64) (domain.ShiftTemplate, bool, error) {
	if a.cache != nil {
		if c, hit := a.cache[doctorID]; hit {
			return c.template, c.ok, nil
		}
	}

	tpl, ok, err := a.resolve(ctx, doctorID)
	if err != nil {
		return domain.ShiftTemplate{}, false, err
	}
	if a.cache != nil {
		a.cache[doctorID] = cachedTemplate{template: tpl, ok: ok}
	}
	return tpl, ok, nil
}

func (a *Allocator) resolve(ctx context.Context, doctorID int64) (domain.ShiftTemplate, bool, error) {
	doc, err := a.roster.Doctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftTemplate{}, false, nil
		}
		return domain.ShiftTemplate{}, false, fmt.Errorf("load doctor %d: %w", doctorID, err)
	}
	if doc.Specialty == "" {
		return domain.ShiftTemplate{}, false, nil
	}

	cohort, err := a.roster.Cohort(ctx, doc.Specialty)
	if err != nil {
		return domain.ShiftTemplate{}, false, fmt.Errorf("load cohort %q: %w", doc.Specialty, err)
	}

	position := -1
	for i, id := range cohort {
		if id == doctorID {
			position = i
			break
		}
	}
	tpl, ok := domain.TemplateForCohort(position, len(cohort))
	return tpl, ok, nil
}

// ShiftForDate binds the doctor's template to day's calendar date in the
// clinic zone.
func (a *Allocator) ShiftForDate(ctx context.Context, doctorID int64, day time.Time) (domain.ShiftInstance, bool, error) {
	tpl, ok, err := a.ResolveTemplate(ctx, doctorID)
	if err != nil || !ok {
		return domain.ShiftInstance{}, false, err
	}
	return tpl.On(day, a.location), true, nil
}

func (a *Allocator) IsWithinShift(ctx context.Context, doctorID int64, at time.Time) (bool, error) {
	shift, ok, err := a.ShiftForDate(ctx, doctorID, at)
	if err != nil || !ok {
		return false, err
	}
	return shift.Contains(at), nil
}
