package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"medsched/backend/internal/config"
	"medsched/backend/internal/domain"
	"medsched/backend/internal/service/calendar"
	"medsched/backend/internal/service/shifts"
	"medsched/backend/internal/service/slots"
	"medsched/backend/internal/store/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "medschedctl",
		Short:        "Inspect doctor shifts and bookable slots",
		SilenceUsage: true,
	}
	root.AddCommand(shiftCmd(), slotsCmd(), calendarCmd(), specialtyColumnCmd())
	return root
}

// env is what every subcommand needs from the database.
type env struct {
	availability domain.Availability
	db           *bun.DB
	doctors      *postgres.DoctorRepo
	allocator    *shifts.Allocator
	log          *slog.Logger
}

func openEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	availability, err := cfg.Availability()
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	column, err := postgres.ResolveSpecialtyColumn(ctx, db, cfg.SpecialtyColumn)
	if err != nil {
		_ = postgres.Close(db)
		return nil, fmt.Errorf("resolve specialty column: %w", err)
	}
	doctors := postgres.NewDoctorRepo(db, column)
	return &env{
		availability: availability,
		db:           db,
		doctors:      doctors,
		allocator:    shifts.NewAllocator(doctors, availability.Location),
		log:          slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}, nil
}

func (e *env) Close() error {
	return postgres.Close(e.db)
}

func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func shiftCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "shift <doctor-id>",
		Short: "Show the shift a doctor works on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := parseDoctorID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				day, err := parseDay(date, e.availability.Location, time.Now())
				if err != nil {
					return err
				}
				shift, ok, err := e.allocator.ShiftForDate(ctx, doctorID, day)
				if err != nil {
					return err
				}
				if !ok {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"doctor_id": doctorID, "shift": nil})
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"doctor_id": doctorID,
					"shift": calendar.Window{
						Start: shift.Start.Format("15:04"),
						End:   shift.End.Format("15:04"),
					},
					"date": shift.Start.Format("2006-01-02"),
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to resolve (YYYY-MM-DD, clinic time); defaults to today")
	return cmd
}

func slotsCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "slots <doctor-id>",
		Short: "List available and booked slots for a doctor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := parseDoctorID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				now := time.Now()
				start, err := parseDay(from, e.availability.Location, now)
				if err != nil {
					return err
				}
				end, err := parseDay(to, e.availability.Location, start)
				if err != nil {
					return err
				}
				gen := slots.NewGenerator(postgres.NewAppointmentRepo(e.db), e.allocator, e.availability, e.log)
				got, err := gen.GenerateSlots(ctx, doctorID, start, e.availability.EndOfDay(end))
				if err != nil {
					return err
				}
				out := make([]slotRow, 0, len(got))
				for _, s := range got {
					out = append(out, toSlotRow(s, e.availability.Location))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD, clinic time); defaults to today")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD, clinic time); defaults to --from")
	return cmd
}

type slotRow struct {
	Type          string `json:"type"`
	Start         string `json:"start"`
	End           string `json:"end"`
	AppointmentID string `json:"appointment_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	Status        string `json:"status,omitempty"`
}

func toSlotRow(s domain.Slot, loc *time.Location) slotRow {
	row := slotRow{
		Type:  string(s.Type),
		Start: s.Start.In(loc).Format("2006-01-02 15:04"),
		End:   s.End.In(loc).Format("2006-01-02 15:04"),
	}
	if s.Booked() {
		row.AppointmentID = s.AppointmentID.String()
		row.PatientName = s.PatientName
		row.Status = string(s.Status)
	}
	return row
}

func calendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Show every doctor with today's shift, grouped by specialty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				view, err := calendar.NewService(e.doctors, e.allocator, e.availability, nil).View(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func specialtyColumnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specialty-column",
		Short: "Print the users column read as the doctor specialty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), e.doctors.SpecialtyColumn())
				return err
			})
		},
	}
}

func parseDoctorID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("doctor id must be a positive integer, got %q", raw)
	}
	return id, nil
}

// parseDay reads a calendar day in the clinic zone, or an RFC 3339 timestamp.
// An empty value yields fallback.
func parseDay(raw string, loc *time.Location, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", raw)
	}
	return t.In(loc), nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
