// Package bootstrap wires configuration, the connection pool and the
// import service for the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easyvol/csvimport/internal/config"
	"github.com/easyvol/csvimport/internal/core"
	_ "github.com/easyvol/csvimport/internal/core/tables" // Register all import types
	"github.com/easyvol/csvimport/internal/database"
	"github.com/easyvol/csvimport/internal/store/postgres"
)

// App holds the wired components.
type App struct {
	Pool    *pgxpool.Pool
	Store   *postgres.Store
	Service *core.Service
}

// Close releases the pool.
func (a *App) Close() {
	a.Pool.Close()
}

// Open connects to the database and builds the service.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	store := postgres.New(pool)
	locker := postgres.NewAdvisoryLocker(pool, cfg.Import.LockWait)
	service := core.NewService(store, postgres.NewJobLog(pool), locker, ServiceOptions(cfg.Import))

	slog.Info("import types registered", "count", len(core.All()))
	return &App{Pool: pool, Store: store, Service: service}, nil
}

// Connect opens and pings a pool sized from cfg.
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

// Migrate applies pending schema migrations.
func Migrate(cfg config.DatabaseConfig) error {
	m, err := database.NewMigrator(cfg.URL, slog.Default())
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// ServiceOptions maps import settings onto core.Options.
func ServiceOptions(c config.ImportConfig) core.Options {
	return core.Options{
		MaxFileSize:   c.MaxFileSize,
		MaxRows:       c.MaxRows,
		PreviewRows:   c.PreviewRows,
		RowTimeout:    c.RowTimeout,
		ReadTimeout:   c.ReadTimeout,
		ProgressEvery: c.ProgressEvery,
	}
}
