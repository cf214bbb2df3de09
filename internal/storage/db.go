// Package storage is the SQLite-backed persistence layer for conversations
// and messages. It owns the pooled database handle and a versioned,
// linear migration runner.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zeim839/agentkit/pkg/agent"
	_ "github.com/mattn/go-sqlite3"
)

// Querier is the subset of *sql.DB / *sql.Tx used by this package, so
// callers can pass either a pooled handle or an in-flight transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB wraps a pooled SQLite handle with the migration runner and the
// conversation/message query methods.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables
// foreign key enforcement (required for the Message table's ON DELETE
// CASCADE), and runs any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids
	// SQLITE_BUSY errors under concurrent access more predictably than
	// relying on busy_timeout alone.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB for callers (e.g. internal/conversation)
// that need direct query access beyond what this package exposes.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// rowNotFound wraps sql.ErrNoRows as the taxonomy's SQLError so callers
// across package boundaries can match on agent.ErrRowNotFound rather than
// reaching for database/sql directly.
func rowNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &agent.SQLError{Message: agent.ErrRowNotFound}
	}
	return fmt.Errorf("storage: query: %w", err)
}
