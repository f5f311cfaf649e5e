package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/ledgerimport/internal/app"
	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Overload lets a local .env win over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"db_max_conns", cfg.Database.MaxConns,
		"state_path", cfg.State.Path,
		"max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"require_api_key", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	server := web.NewServer(a.Service, cfg, map[string]web.HealthCheck{
		"ledger": a.Ledger.Ping,
		"state": func(ctx context.Context) error {
			_, err := a.Service.Status(ctx)
			return err
		},
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Sweep.Enabled {
		go a.Service.StartSweeper(jobCtx, core.SweepConfig{
			SessionTTL:    cfg.Sweep.SessionTTL,
			CheckInterval: cfg.Sweep.Interval,
		})
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let running commits finish.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := a.Service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for jobs to complete", "active", status.Active)
			if err := a.Service.WaitForJobs(shutdownCtx); err != nil {
				slog.Warn("jobs did not complete in time", "error", err)
			} else {
				slog.Info("all jobs completed")
			}
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
