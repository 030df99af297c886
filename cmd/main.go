// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/config"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/database"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/handler"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/service"
	"github.com/Shivanand-hulikatti/campus-event-admission/internal/telemetry"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := configureLogger(log, cfg); err != nil {
		log.WithError(err).Fatal("configure logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func configureLogger(log *logrus.Logger, cfg config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	// ── 1. Tracing ────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("flush traces")
		}
	}()

	// ── 2. Open the store ─────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventSvc := service.NewEventService(store, log)
	admissionSvc := service.NewAdmissionService(store, log)
	accessSvc := service.NewAccessRequestService(store, log)
	profileSvc := service.NewProfileService(store)

	router := handler.NewRouter(handler.Router{
		Events:     handler.NewEventHandler(eventSvc, admissionSvc, log),
		Profiles:   handler.NewProfileHandler(profileSvc, log),
		Access:     handler.NewAccessHandler(accessSvc, log),
		AuthSecret: []byte(cfg.AuthSecret),
		Log:        log,
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.Store}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("opened SQLite store")
		return store, nil
	default:
		pool, err := database.NewPool(ctx, cfg.DB, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(cfg.DB); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.WithField("host", cfg.DB.Host).Info("connected to PostgreSQL")
		return postgres.NewStore(pool), nil
	}
}
