package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	MEMORY_PATH = ":memory:"

	DEFAULT_BUSY_TIMEOUT = 5 * time.Second
	connectionTimeout    = 5 * time.Second
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		entry_id   TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		data       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

type DB struct {
	*sql.DB
	path string
}

// Open opens the sqlite database at path, creating its directory, and brings
// the schema up to date.
func Open(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	connStr := "file::memory:?_foreign_keys=on"
	if path != MEMORY_PATH {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
			path, DEFAULT_BUSY_TIMEOUT.Milliseconds())
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer; also keeps an in-memory database alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	applied, err := db.migrate(ctx)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	logger.Debug("storage: database open", zap.String("path", path), zap.Int("migrations_applied", applied))
	return db, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// migrate applies the migrations newer than the stored user_version.
func (db *DB) migrate(ctx context.Context) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	applied := 0
	for i := version; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("starting migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("committing migration %d: %w", i+1, err)
		}
		applied++
	}
	return applied, nil
}
