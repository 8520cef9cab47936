// CLAUDE:SUMMARY Opens the document store's SQLite database with WAL pragmas, optional schema and parent directory creation.
// CLAUDE:EXPORTS Open, OpenMemory, Option, WithDriver, WithPragma, WithMkdirAll, WithSchema, RunTx, IsBusy
// Package dbopen opens the SQLite database behind the document store.
//
// Every connection gets the same pragmas, applied in order:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Importing dbopen registers the modernc.org/sqlite driver, so
//
//	db, err := dbopen.Open("db/mdconv.db", dbopen.WithMkdirAll(), dbopen.WithSchema(ddl))
//
// is all a caller needs. Tests use OpenMemory.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type pragma struct{ name, value string }

type config struct {
	driver   string
	pragmas  []pragma
	mkdirAll bool
	schemas  []string
}

func newConfig(opts []Option) *config {
	c := &config{
		driver: "sqlite",
		pragmas: []pragma{
			{"foreign_keys", "ON"},
			{"journal_mode", "WAL"},
			{"busy_timeout", "10000"},
			{"synchronous", "NORMAL"},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option customises Open.
type Option func(*config)

// WithDriver selects the database/sql driver, e.g. the tracing driver.
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithPragma overrides one of the default pragmas or appends a new one.
func WithPragma(name, value string) Option {
	return func(c *config) {
		for i := range c.pragmas {
			if strings.EqualFold(c.pragmas[i].name, name) {
				c.pragmas[i].value = value
				return
			}
		}
		c.pragmas = append(c.pragmas, pragma{name, value})
	}
}

// WithMkdirAll creates the parent directories of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to run once the pragmas are set.
func WithSchema(ddl string) Option { return func(c *config) { c.schemas = append(c.schemas, ddl) } }

// Open opens and pings the database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := newConfig(opts)

	if cfg.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create dir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := cfg.prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (c *config) prepare(db *sql.DB) error {
	for _, p := range c.pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("dbopen: %s: %w", stmt, err)
		}
	}
	for _, ddl := range c.schemas {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}

// OpenMemory opens a private in-memory database closed at test cleanup.
// The pool is pinned to one connection because every ":memory:" connection
// is its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
