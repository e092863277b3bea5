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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/garrison/internal/api"
	"github.com/erazemk/garrison/internal/db"
	"github.com/erazemk/garrison/internal/jobs"
	"github.com/erazemk/garrison/internal/metrics"
	"github.com/erazemk/garrison/internal/store"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API, creating the database on first run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringP("addr", "a", "", "listen address (default :8080)")
	f.StringP("user", "u", "", "admin username on first run (default admin)")
	f.Bool("allow-registration", false, "allow self-registration of logistics officers")
	f.Bool("metrics", true, "expose Prometheus metrics on /metrics")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.DB.Path); os.IsNotExist(err) {
		database, password, err := initDatabase(ctx, cfg.DB.Path, cfg.Admin.Username)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.DB.Path, cfg.Admin.Username, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Migrations are idempotent.
	if err := db.Migrate(ctx, database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	version, _ := db.SchemaVersion(ctx, database)
	users, err := store.CountUsers(ctx, database)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	slog.Info("database ready", "path", cfg.DB.Path, "schema_version", version, "users", users)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		// Persisted on first run so tokens survive restarts.
		if jwtSecret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("loading JWT secret: %w", err)
		}
	}

	if pending, err := store.CountInventoryReturns(ctx, database); err == nil {
		metrics.SetPendingReturns(pending)
		if pending > 0 {
			slog.Warn("inventory returns waiting for retry", "count", pending)
		}
	}

	apiRouter := api.NewRouter(database, api.Options{
		JWTSecret:         jwtSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
		AllowRegistration: cfg.Auth.AllowRegistration,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", api.RequestIDMiddleware(api.LoggingMiddleware(metrics.Instrument(apiRouter))))
	mux.HandleFunc("GET /health", healthHandler)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := jobs.NewScheduler(ctx, jobs.NewRegistry(database, jobs.Schedules{
		ReturnRetry:  cfg.Jobs.ReturnRetry,
		TokenCleanup: cfg.Jobs.TokenCleanup,
	}))
	if err != nil {
		return fmt.Errorf("scheduling jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", cfg.HTTP.Addr, "metrics", cfg.Metrics.Enabled,
			"registration", cfg.Auth.AllowRegistration)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		slog.Info("job scheduler started", "jobs", scheduler.Entries())
		<-gctx.Done()

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		scheduler.Stop(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped, closing database")
	return err
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
