// Package app wires the configured stores into an import service. Both the
// HTTP server and the CLI start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/spreadsheet"
	"github.com/JonMunkholm/ledgerimport/internal/store/postgres"
	"github.com/JonMunkholm/ledgerimport/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the open connections behind a Service.
type App struct {
	Pool    *pgxpool.Pool
	Ledger  *postgres.Store
	State   *sqlite.Store
	Service *core.Service
}

// Open connects to the ledger database and the state store and builds the
// service. The caller must Close the App.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	state, err := sqlite.Open(ctx, cfg.State.Path, cfg.State.BusyTimeout)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	opts, err := core.OptionsFromConfig(cfg.Import)
	if err != nil {
		pool.Close()
		state.Close()
		return nil, err
	}

	ledger := postgres.New(pool)
	svc, err := core.NewService(core.Deps{
		State:   state,
		Staging: ledger,
		Ledger:  ledger,
		Catalog: ledger,
		Decoder: spreadsheet.NewDecoder(),
	}, opts)
	if err != nil {
		pool.Close()
		state.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &App{Pool: pool, Ledger: ledger, State: state, Service: svc}, nil
}

// Connect opens and pings a pgx pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// Close releases the state store and the pool.
func (a *App) Close() {
	if err := a.State.Close(); err != nil {
		slog.Error("failed to close state store", "error", err)
	}
	a.Pool.Close()
}
