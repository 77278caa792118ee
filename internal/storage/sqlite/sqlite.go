// Package sqlite implements storage.Storage on SQLite. WAL mode plus
// BEGIN IMMEDIATE transactions give the atomic claim and quota semantics
// the engine needs across concurrent worker processes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements the Storage interface using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and initializes the
// schema.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode so readers see a consistent snapshot while writers commit
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction on a
// dedicated connection. IMMEDIATE acquires a RESERVED lock up front, which
// serializes claim and quota decisions across concurrent workers.
//
// Raw Exec is used instead of BeginTx because database/sql has no notion of
// transaction modes and the sqlite3 driver's BeginTx always opens DEFERRED.
func (s *Store) withImmediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// ROLLBACK uses context.Background() so cleanup happens even if ctx is
	// already canceled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
