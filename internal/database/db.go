// Package database stores birth profiles in SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// =============================================================================
// Database Connection
// =============================================================================

// DB is the profile store.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Config holds database configuration options.
type Config struct {
	Path            string        // SQLite file, or ":memory:"
	MaxOpenConns    int           // 1: SQLite allows a single writer
	MaxIdleConns    int           // default 1
	ConnMaxLifetime time.Duration // default 1 hour
}

// DefaultConfig returns the settings cmd/api and the CLIs use for a profile
// file at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// dsn enables WAL, foreign keys and a 5s busy timeout so concurrent profile
// reads during an import wait instead of failing with SQLITE_BUSY.
func (c Config) dsn() string {
	return c.Path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
}

func (c Config) ensureDir() error {
	if c.Path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(c.Path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// Open connects to the profile store. It does not migrate; call Migrate.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.ensureDir(); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("profile store opened",
		slog.String("path", cfg.Path),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return &DB{DB: sqlDB, logger: logger}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info("closing profile store")
	return db.DB.Close()
}

// Health reports whether the store can serve profile requests: the
// connection answers, every migration is applied and the profile table
// is readable.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if want := latestVersion(); version < want {
		return fmt.Errorf("%w: at version %d, want %d", ErrSchemaOutdated, version, want)
	}

	if _, err := db.CountProfiles(ctx); err != nil {
		return fmt.Errorf("profile table unreadable: %w", err)
	}
	return nil
}

// =============================================================================
// Migrations
// =============================================================================

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)
`

func latestVersion() int {
	return len(migrationsSQL)
}

// SchemaVersion returns the highest applied migration, or 0 on a fresh file.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var tables int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&tables)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies pending forward-only migrations in version order inside a
// single transaction and returns how many were applied. Migration 2 tags
// existing birth dates 'legacy'; NormalizeLegacyDates converts them.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	var count int
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations table: %w", err)
		}

		applied, err := tx.appliedVersions(ctx)
		if err != nil {
			return err
		}

		for version := 1; version <= latestVersion(); version++ {
			if applied[version] {
				continue
			}
			if err := tx.applyMigration(ctx, version); err != nil {
				return err
			}
			db.logger.Info("applied migration", slog.Int("version", version))
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.logger.Info("profile schema up to date",
		slog.Int("applied", count),
		slog.Int("version", latestVersion()),
	)
	return count, nil
}

func (tx *Tx) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return applied, nil
}

func (tx *Tx) applyMigration(ctx context.Context, version int) error {
	stmt, ok := migrationsSQL[version]
	if !ok {
		return fmt.Errorf("migration %d not found", version)
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("execute migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return nil
}

// =============================================================================
// Transaction Helpers
// =============================================================================

// Tx is a profile-store transaction. cmd/import uses it to insert a whole
// spreadsheet or nothing.
type Tx struct {
	*sql.Tx
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx}, nil
}

// WithTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
//
//	err := db.WithTx(ctx, func(tx *database.Tx) error {
//	    return tx.InsertProfile(ctx, p)
//	})
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a profile doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidProfile wraps birth inputs rejected before a write.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrSchemaOutdated means Migrate has not been run against this file.
	ErrSchemaOutdated = errors.New("profile schema outdated")
)

// IsNotFound checks if an error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
