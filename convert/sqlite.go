package convert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/mdconv/dbopen"
	"github.com/hazyhaar/mdconv/docmodel"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT PRIMARY KEY,
    filename     TEXT NOT NULL,
    source_type  TEXT NOT NULL,
    status       TEXT NOT NULL,
    source_path  TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_events (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    from_status  TEXT NOT NULL DEFAULT '',
    to_status    TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status  ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
CREATE INDEX IF NOT EXISTS idx_events_document   ON document_events(document_id);
`

// SQLiteStore persists documents in SQLite. The full document is kept as
// JSON in the body column; status and timestamps are duplicated into
// columns for queries and compare-and-swap transitions.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (or creates) the database at path and runs migrations.
// Extra options go to dbopen.Open, e.g. a tracing driver.
func OpenSQLiteStore(path string, opts ...dbopen.Option) (*SQLiteStore, error) {
	opts = append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(schema)}, opts...)
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database (see Schema).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Schema returns the DDL the store expects.
func Schema() string { return schema }

// DB returns the underlying *sql.DB.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func (s *SQLiteStore) Put(ctx context.Context, doc *docmodel.Document) error {
	if err := checkNew(doc); err != nil {
		return err
	}
	c := doc.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, c.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrExists, c.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check document: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO documents (id, filename, source_type, status, source_path, body, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Filename, string(c.SourceType), string(c.Status), c.SourcePath, string(body),
			formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return insertEvent(ctx, tx, Event{DocumentID: c.ID, To: c.Status, At: c.CreatedAt})
	})
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*docmodel.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body, source_path FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, err
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, to docmodel.Status, mutate func(*docmodel.Document)) (*docmodel.Document, error) {
	var next *docmodel.Document
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT body, source_path FROM documents WHERE id = ?`, id)
		cur, err := scanDocument(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		next, err = applyTransition(cur, to, mutate, s.now())
		if err != nil {
			return err
		}
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
UPDATE documents SET status = ?, source_path = ?, body = ?, updated_at = ?
WHERE id = ? AND status = ?`,
			string(next.Status), next.SourcePath, string(body), formatTime(next.UpdatedAt),
			id, string(cur.Status))
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: %s changed concurrently", docmodel.ErrIllegalTransition, id)
		}
		return insertEvent(ctx, tx, Event{
			DocumentID: id,
			From:       cur.Status,
			To:         to,
			Error:      next.Error,
			At:         next.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*docmodel.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT body, source_path FROM documents ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status docmodel.Status) ([]*docmodel.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT body, source_path FROM documents WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", status, err)
	}
	return collectDocuments(rows)
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT from_status, to_status, error, at FROM document_events WHERE document_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var from, to, msg, at string
		if err := rows.Scan(&from, &to, &msg, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ts, _ := time.Parse(timeLayout, at)
		events = append(events, Event{
			DocumentID: id,
			From:       docmodel.Status(from),
			To:         docmodel.Status(to),
			Error:      msg,
			At:         ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return events, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev Event) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO document_events (document_id, from_status, to_status, error, at) VALUES (?, ?, ?, ?, ?)`,
		ev.DocumentID, string(ev.From), string(ev.To), ev.Error, formatTime(ev.At))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*docmodel.Document, error) {
	var body, sourcePath string
	if err := row.Scan(&body, &sourcePath); err != nil {
		return nil, err
	}
	doc := &docmodel.Document{}
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.SourcePath = sourcePath
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]*docmodel.Document, error) {
	defer rows.Close()
	var out []*docmodel.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
