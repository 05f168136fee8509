// Package store provides the durable local storage for tasksync.
//
// A single embedded SQLite database (WAL mode for concurrent readers)
// holds three tables:
//   - records: Task/Category payloads keyed by entity id, with extracted
//     columns for category/status/priority/deadline queries
//   - sync_queue: append-only FIFO log of pending mutations, keyed by an
//     auto-incrementing sequence id
//   - settings: key/value pairs (last sync time, auto-sync preferences)
//
// Record writes and their queue entries share one transaction, so a local
// mutation and its staged sync operation are never observably separated.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Sentinel errors surfaced by store operations.
var (
	// ErrNotFound is returned when a record or queue entry does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned on unique-constraint violations,
	// e.g. two categories with the same name.
	ErrDuplicate = errors.New("duplicate record")
)

// DB wraps the SQLite connection with tasksync-specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		category TEXT,
		status TEXT,
		priority TEXT,
		deadline TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		data TEXT NOT NULL,  -- full JSON payload
		PRIMARY KEY (id, entity_type)
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op_type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		data TEXT,  -- payload snapshot, NULL for deletes
		enqueued_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		synced_at TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(entity_type);
	CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	CREATE INDEX IF NOT EXISTS idx_records_priority ON records(priority);
	CREATE INDEX IF NOT EXISTS idx_records_deadline ON records(deadline);
	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated_at);

	-- Category names are unique
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_category_name
	    ON records(json_extract(data, '$.name')) WHERE entity_type = 'category';

	CREATE INDEX IF NOT EXISTS idx_queue_synced ON sync_queue(synced);
	CREATE INDEX IF NOT EXISTS idx_queue_entity ON sync_queue(entity_type, entity_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// isConstraintErr reports whether err looks like a SQLite constraint violation.
func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
