package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/mdconv/dbopen"
)

func pragmaInt(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var v int
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpen_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var journal string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journal); err != nil {
		t.Fatal(err)
	}
	// in-memory databases report "memory" even after the WAL pragma ran
	if journal != "wal" && journal != "memory" {
		t.Errorf("journal_mode = %q", journal)
	}
	if got := pragmaInt(t, db, "foreign_keys"); got != 1 {
		t.Errorf("foreign_keys = %d", got)
	}
	if got := pragmaInt(t, db, "busy_timeout"); got != 10000 {
		t.Errorf("busy_timeout = %d", got)
	}
	if got := pragmaInt(t, db, "synchronous"); got != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", got)
	}
}

func TestWithPragma(t *testing.T) {
	db := dbopen.OpenMemory(t,
		dbopen.WithPragma("busy_timeout", "2500"),
		dbopen.WithPragma("SYNCHRONOUS", "FULL"),
		dbopen.WithPragma("cache_size", "-4000"),
	)
	if got := pragmaInt(t, db, "busy_timeout"); got != 2500 {
		t.Errorf("busy_timeout = %d", got)
	}
	if got := pragmaInt(t, db, "synchronous"); got != 2 {
		t.Errorf("synchronous = %d, want 2 (FULL)", got)
	}
	if got := pragmaInt(t, db, "cache_size"); got != -4000 {
		t.Errorf("cache_size = %d", got)
	}
}

func TestOpen_BadPragma(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithPragma("busy_timeout", "(")); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_FileWithSchema(t *testing.T) {
	// WHAT: The store's on-disk path is created and its schema applied on open.
	path := filepath.Join(t.TempDir(), "db", "nested", "mdconv.db")
	ddl := `CREATE TABLE IF NOT EXISTS documents (id TEXT PRIMARY KEY, filename TEXT)`

	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(ddl))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO documents VALUES ('a', 'a.pdf')`); err != nil {
		t.Fatal(err)
	}
	db.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}

	// reopening with the same idempotent schema keeps the rows
	db, err = dbopen.Open(path, dbopen.WithSchema(ddl))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var name string
	if err := db.QueryRow(`SELECT filename FROM documents WHERE id = 'a'`).Scan(&name); err != nil || name != "a.pdf" {
		t.Fatalf("filename = %q, err = %v", name, err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table: documents"), false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("put: database is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE events (id INTEGER PRIMARY KEY, status TEXT)`))
	ctx := context.Background()

	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO events (status) VALUES ('pending')`)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	errIllegal := errors.New("illegal transition")
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO events (status) VALUES ('completed')`)
		return errIllegal
	})
	if err != errIllegal {
		t.Fatalf("err = %v, want the callback's error unwrapped", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	if n != 1 {
		t.Fatalf("rows = %d, want 1 after rollback", n)
	}
}

func TestRunTx_RetriesBusy(t *testing.T) {
	db := dbopen.OpenMemory(t)
	calls := 0
	err := dbopen.RunTx(context.Background(), db, func(*sql.Tx) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRunTx_GivesUp(t *testing.T) {
	db := dbopen.OpenMemory(t)
	calls := 0
	err := dbopen.RunTx(context.Background(), db, func(*sql.Tx) error {
		calls++
		return errors.New("database is locked")
	})
	if !dbopen.IsBusy(err) || calls != 4 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRunTx_Cancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
