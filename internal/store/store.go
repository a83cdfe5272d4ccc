// Package store implements the Durable Log: the single source of truth
// for repositories, sessions, and messages. All other engine state
// (snapshot, delta, live hub) is derived from it.
//
// Journal mode is WAL with synchronous=NORMAL and a busy-timeout of 5s,
// per the Durable Log contract. Writes flow through a single dedicated
// connection (SQLite allows exactly one writer at a time); reads flow
// through a separate connection pool so they never queue behind a write.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the Durable Log: a SQLite-backed append-only record of every
// committed fact.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	shared  bool // true when writeDB == readDB (in-memory stores)
}

// Open creates or opens a SQLite database at path. It applies required
// pragmas and runs forward migrations idempotently; safe to call more
// than once against the same path.
func Open(path string) (*Store, error) {
	writeDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	readDB.SetMaxOpenConns(4)

	s := &Store{writeDB: writeDB, readDB: readDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory creates a private in-memory store for tests. A single
// connection backs both reads and writes so that SQLite's one-connection-
// per-:memory:-database rule doesn't silently split state in two.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open in-memory connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{writeDB: db, readDB: db, shared: true}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := applyPragmas(s.writeDB); err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}
	if !s.shared {
		if err := applyPragmas(s.readDB); err != nil {
			return fmt.Errorf("apply pragmas: %w", err)
		}
	}
	if err := applySchema(s.writeDB); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes both underlying connections.
func (s *Store) Close() error {
	var firstErr error
	if s.writeDB != nil {
		if err := s.writeDB.Close(); err != nil {
			firstErr = err
		}
	}
	if !s.shared && s.readDB != nil {
		if err := s.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithTx runs fn inside an explicit transaction on the write connection.
// A failure anywhere before fn returns nil leaves the log unchanged: the
// transaction is rolled back and the error is propagated to the caller.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadDB exposes the read-only connection pool for package-internal
// query helpers.
func (s *Store) ReadDB() *sql.DB { return s.readDB }

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on
// PRAGMA user_version, in ascending version order. An unknown future
// version (newer than this binary understands) is rejected with an error,
// so Open fails instead of touching a schema it does not know.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	// No migrations beyond the initial schema yet; schema.sql is applied
	// unconditionally above via CREATE TABLE IF NOT EXISTS. Future
	// migrations append here, guarded by `if version < N`.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
