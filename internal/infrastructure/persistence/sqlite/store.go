// Package sqlite implements the single-file store of mentor-hub on top of
// modernc.org/sqlite. It serves the same repositories as the postgres
// package for small deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

// Store owns the database handle shared by all repositories.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" && !strings.HasPrefix(path, "file::memory:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps UPSERT counters serialized and in-memory databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// DB exposes the handle for tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{1, "create_programs", `
		CREATE TABLE IF NOT EXISTS programs (
			key           TEXT PRIMARY KEY,
			label         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			objectives    TEXT NOT NULL DEFAULT '',
			level         TEXT NOT NULL DEFAULT '',
			resources     TEXT NOT NULL DEFAULT '[]',
			modules       TEXT NOT NULL DEFAULT '[]',
			published     INTEGER NOT NULL DEFAULT 0,
			publish_token TEXT UNIQUE,
			published_at  TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS revoked_publish_tokens (
			token       TEXT PRIMARY KEY,
			program_key TEXT NOT NULL,
			revoked_at  TEXT NOT NULL
		);`},
	{2, "create_usage_and_summaries", `
		CREATE TABLE IF NOT EXISTS student_usage (
			email      TEXT NOT NULL,
			period     TEXT NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (email, period)
		);
		CREATE TABLE IF NOT EXISTS student_summaries (
			email      TEXT PRIMARY KEY,
			summary    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`},
	{3, "create_prompt_config", `
		CREATE TABLE IF NOT EXISTS prompt_templates (
			key        TEXT PRIMARY KEY,
			label      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS app_config (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`},
}

// Migrate applies pending migrations. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		err = s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, formatTime(time.Now()))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
