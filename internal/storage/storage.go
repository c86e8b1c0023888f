// Package storage constructs the durable *sql.DB handles backing the
// memory store, token-usage tracker, and job queue, and bootstraps their
// schema from embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Driver names the two supported backends.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver          Driver
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLiteConfig returns a local embedded-database configuration,
// the zero-dependency default for development and tests.
func DefaultSQLiteConfig(path string) Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             path,
		MaxOpenConns:    1, // modernc.org/sqlite serializes writers; keep one connection
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultPostgresConfig returns a production Postgres/CockroachDB
// configuration, following the teacher's connection-pool defaults.
func DefaultPostgresConfig(dsn string) Config {
	return Config{
		Driver:          DriverPostgres,
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Open constructs a *sql.DB, pings it, and applies embedded migrations.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driverName := "sqlite"
	if cfg.Driver == DriverPostgres {
		driverName = "postgres"
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driverName, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if err := Migrate(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Rebind rewrites a query written with "?" placeholders into the dialect
// the given driver expects: sqlite keeps "?" as-is, postgres rewrites each
// to "$1", "$2", ... in order.
func Rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, in filename order. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("storage: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var count int
		row := db.QueryRowContext(ctx, Rebind(driver, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), name)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("storage: check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}
		contents, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, Rebind(driver, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`), name, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: commit migration %s: %w", name, err)
		}
	}
	return nil
}
