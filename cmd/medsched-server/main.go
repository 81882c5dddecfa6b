package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"

	"medsched/backend/internal/config"
	"medsched/backend/internal/notify"
	"medsched/backend/internal/service/appointments"
	"medsched/backend/internal/service/calendar"
	"medsched/backend/internal/service/shifts"
	"medsched/backend/internal/service/slots"
	"medsched/backend/internal/store/postgres"
	grpcTransport "medsched/backend/internal/transport/grpc"
	"medsched/backend/internal/transport/httpapi"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "medsched-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "medsched-server"),
	)
	slog.SetDefault(log)

	availability, err := cfg.Availability()
	if err != nil {
		log.Error("clinic settings invalid", slog.Any("err", err))
		os.Exit(1)
	}

	grpcAddr := net.JoinHostPort(cfg.GRPCHost, strconv.Itoa(cfg.GRPCPort))
	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", grpcAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("timezone", availability.Location.String()),
		slog.Duration("slot_duration", availability.SlotDuration),
		slog.Any("days_available", availability.Days.Names()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	column, err := postgres.ResolveSpecialtyColumn(ctx, db, cfg.SpecialtyColumn)
	if err != nil {
		log.Error("specialty column lookup failed", slog.Any("err", err), slog.String("configured", cfg.SpecialtyColumn))
		os.Exit(1)
	}
	log.Info("roster ready", slog.String("specialty_column", column))

	dispatcher, closeDispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		log.Error("notification broker connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := closeDispatcher(); err != nil {
			log.Warn("notification broker close failed", slog.Any("err", err))
		}
	}()

	repo := postgres.NewAppointmentRepo(db)
	doctors := postgres.NewDoctorRepo(db, column)
	allocator := shifts.NewAllocator(doctors, availability.Location)
	generator := slots.NewGenerator(repo, allocator, availability, log)
	notifier := notify.NewNotifier(dispatcher, availability.Location, log)
	svc := appointments.NewService(repo, doctors, allocator, notifier, availability, log)
	cal := calendar.NewService(doctors, allocator, availability, nil)

	e := httpapi.NewEcho(httpapi.NewHandler(generator, svc, cal, availability.Location, log))

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterAppointmentsServiceServer(grpcServer, grpcTransport.NewAppointmentsServer(generator, allocator, svc, log))
	health := grpcTransport.RegisterHealth(grpcServer)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", grpcAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", grpcAddr))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	health.Shutdown()
	shutdownHTTP(log, e, cfg.ShutdownTimeout)
	shutdown(log, grpcServer, cfg.ShutdownTimeout)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newDispatcher publishes to the broker when one is configured and falls
// back to logging the payloads otherwise.
func newDispatcher(cfg config.Config, log *slog.Logger) (notify.Dispatcher, func() error, error) {
	if cfg.AMQPURL == "" {
		log.Info("no notification broker configured; notifications will be logged")
		return notify.NewLogDispatcher(log), func() error { return nil }, nil
	}
	pub, closeFn, err := notify.Dial(cfg.AMQPURL, cfg.AMQPNotificationQueue)
	if err != nil {
		return nil, nil, err
	}
	log.Info("notification broker connected", slog.String("queue", cfg.AMQPNotificationQueue))
	return pub, closeFn, nil
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdownHTTP(log *slog.Logger, e *echo.Echo, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
		return
	}
	log.Info("http server stopped")
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
