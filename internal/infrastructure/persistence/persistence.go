// Package persistence opens the SQL store selected by the database URL and
// exposes its repositories behind domain interfaces.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/mentor-hub/mentor-hub/config"
	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence/postgres"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence/sqlite"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/retry"
)

// PromptRepository stores templates and the mentor config.
type PromptRepository interface {
	prompt.TemplateRepository
	prompt.ConfigRepository
}

// UsageRepository is a usage counter that can also list a period.
type UsageRepository interface {
	usage.Counter
	Records(ctx context.Context, period string) ([]usage.Record, error)
}

// Stores groups the repositories of one SQL backend.
type Stores struct {
	Driver    string
	Programs  program.Repository
	Prompts   PromptRepository
	Summaries summary.Repository
	Usage     UsageRepository

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the backend.
func (s *Stores) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the backend.
func (s *Stores) Close() { s.close() }

// Options controls Open.
type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// Open connects to the database of cfg, retrying while it comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts Options, log *logger.Logger) (*Stores, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("persistence"), logger.String("driver", cfg.Driver()))

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retrier := retry.StartupRetrier(attempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready", logger.Int("attempt", attempt), logger.Duration("retry_in", delay), logger.Err(err))
	})

	switch cfg.Driver() {
	case "postgres":
		return openPostgres(ctx, cfg, opts, retrier)
	case "sqlite":
		return openSQLite(ctx, cfg, opts, retrier)
	default:
		return nil, fmt.Errorf("persistence: unsupported database URL %q", cfg.URL)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, opts Options, retrier *retry.Retrier) (*Stores, error) {
	poolOpts := postgres.PoolOptions{
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MinIdleConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
		MaxConnIdleTime: cfg.ConnMaxIdleTime,
	}

	var conn *postgres.Connection
	err := retrier.Do(ctx, func(ctx context.Context) error {
		c, err := postgres.Open(ctx, cfg.URL, poolOpts)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: connect postgres: %w", err)
	}

	if opts.Migrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}

	prompts := postgres.NewPromptRepository(conn)
	return &Stores{
		Driver:    "postgres",
		Programs:  postgres.NewProgramRepository(conn),
		Prompts:   prompts,
		Summaries: postgres.NewSummaryRepository(conn),
		Usage:     postgres.NewUsageRepository(conn),
		ping:      conn.Ping,
		close:     conn.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, opts Options, retrier *retry.Retrier) (*Stores, error) {
	var store *sqlite.Store
	err := retrier.Do(ctx, func(ctx context.Context) error {
		s, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}

	if opts.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return &Stores{
		Driver:    "sqlite",
		Programs:  sqlite.NewProgramRepository(store),
		Prompts:   sqlite.NewPromptRepository(store),
		Summaries: sqlite.NewSummaryRepository(store),
		Usage:     sqlite.NewUsageRepository(store),
		ping:      store.Ping,
		close:     func() { _ = store.Close() },
	}, nil
}
