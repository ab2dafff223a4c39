// Package sqlite implements the repository interfaces on a single SQLite file.
//
// DRIVER:
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. The driver registers itself with database/sql under
// the name "sqlite" when the package is imported.
//
// ACCESS MODEL:
// Every repository method is one parameterised SQL statement. database/sql
// runs each Exec in its own implicit transaction, so a write is atomic on its
// own and nothing here spans statements. Concurrent writers are serialised by
// SQLite's file lock; busy_timeout makes a second writer wait instead of
// failing immediately.
//
// SCHEMA:
// Tables are created by goose from the SQL files embedded in ./migrations.
// goose records applied versions in goose_db_version, so opening an existing
// database is a no-op.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/blog/internal/repository/sqlite/migrations"
)

// MemoryPath opens a private in-memory database. Used by tests.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements
// repository.UserRepository and repository.PostRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "instance/blog.sqlite" → file-based database
//   - ":memory:"             → in-memory database, lost on Close
//
// The parent directory of a file-based database is created if missing.
func New(dbPath string) (*DB, error) {
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so every query sees the same tables.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers (the feed) proceed while a write is in progress.
	// The setting is stored in the file, so running it once is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn appends the per-connection settings to the path.
//
// foreign_keys and busy_timeout only apply to the connection that sets them.
// Passing them as _pragma parameters makes the driver run them on every new
// pooled connection, not only the first one. _time_format=sqlite writes
// timestamps as "2006-01-02 15:04:05.999999999-07:00", which sorts correctly
// as text and matches what CURRENT_TIMESTAMP produces.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate applies every migration that has not run yet.
func (db *DB) migrate(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.conn, ".")
}

// Reset drops every table and recreates the schema from scratch.
// All users and posts are lost. Used by cmd/initdb.
func (db *DB) Reset(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.DownToContext(ctx, db.conn, ".", 0); err != nil {
		return fmt.Errorf("sqlite: dropping schema: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "."); err != nil {
		return fmt.Errorf("sqlite: recreating schema: %w", err)
	}
	return nil
}

// setupGoose points goose at the embedded migrations.
// goose keeps this in package state, so it is set before every run.
func setupGoose() error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: setting goose dialect: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is SQLite rejecting a row because it
// would duplicate a UNIQUE column.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Without extended result codes only the primary code is reported.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE")
}
