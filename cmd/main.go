// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/clock"
	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/handler"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/messaging"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/Shivanand-hulikatti/event-admission/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// ── 1. Tracing ───────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	// ── 2. Connect to PostgreSQL ─────────────────────────────────────────
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// ── 3. Notification transport ────────────────────────────────────────
	var (
		notifier service.Notifier = notify.LogNotifier{}
		bus      *messaging.Client
	)
	if cfg.NATS.URL != "" {
		bus, err = messaging.Connect(cfg.NATS)
		if err != nil {
			return err
		}
		defer func() { _ = bus.Close() }()
		notifier = notify.NewNATSNotifier(bus, cfg.NATS.NotificationSubject)
	} else {
		slog.Warn("NATS_URL not set, notifications will only be logged")
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	m := metrics.New()
	sysClock := clock.NewSystem()

	admission := service.NewAdmissionService(service.Stores{
		Tx:            db,
		Events:        repository.NewEventRepository(db),
		Registrations: repository.NewRegistrationRepository(db),
		Payments:      repository.NewPaymentRepository(db),
		Attendance:    repository.NewAttendanceRepository(db),
		Audit:         repository.NewAuditRepository(db),
	}, notifier,
		service.WithClock(sysClock),
		service.WithMetrics(m),
		service.WithBaseURL(cfg.PublicBaseURL),
	)
	gateway := service.NewPaymentGateway(admission,
		payment.NewClient(cfg.Payment),
		payment.NewVerifier(cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance, sysClock),
		service.GatewayURLs{Success: cfg.Payment.SuccessURL, Cancel: cfg.Payment.CancelURL},
	)

	if bus != nil {
		promote := func(ctx context.Context, eventID string) ([]string, error) {
			return admission.CapacityChanged(ctx, model.SystemActor, eventID)
		}
		if _, err := bus.QueueSubscribe(cfg.NATS.CapacityChangedSubject, cfg.NATS.CapacityQueue,
			messaging.CapacityHandler(promote, 30*time.Second)); err != nil {
			return err
		}
	}

	// ── 5. Build the router ──────────────────────────────────────────────
	router := handler.NewRouter(handler.RouterConfig{
		Admission:      admission,
		Payments:       gateway,
		Auth:           handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:        m,
		Health:         db,
		AllowedOrigins: cfg.CORSOrigins,
	})

	// ── 6. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
