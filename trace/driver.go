package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/mdconv/kit"
)

// TracingDriver wraps a driver so every prepared statement reports to the
// observer and the logger. Connections expose only Prepare, which makes
// database/sql route Exec and Query through the traced statement.
type TracingDriver struct {
	driver.Driver
}

func (d *TracingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn}, nil
}

type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

// BeginTx keeps the store's transactions context-aware; the embedded Conn
// alone would only expose Begin.
func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bc, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bc.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func timed[T any](ctx context.Context, s *tracingStmt, op string, run func() (T, error)) (T, error) {
	start := time.Now()
	v, err := run()
	s.record(ctx, op, time.Since(start), err)
	return v, err
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return timed(ctx, s, "exec", func() (driver.Result, error) {
		if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
			return ec.ExecContext(ctx, args)
		}
		return s.Stmt.Exec(values(args))
	})
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return timed(ctx, s, "query", func() (driver.Rows, error) {
		if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
			return qc.QueryContext(ctx, args)
		}
		return s.Stmt.Query(values(args))
	})
}

func (s *tracingStmt) record(ctx context.Context, op string, d time.Duration, err error) {
	if o := getObserver(); o != nil {
		o(op, d, err)
	}

	slow := d > slowThreshold()
	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case slow:
		level = slog.LevelWarn
	case strings.HasPrefix(s.query, "PRAGMA "):
		return
	}
	if !slog.Default().Enabled(ctx, level) {
		return
	}

	attrs := append([]slog.Attr{
		slog.String("op", op),
		slog.String("query", s.query),
		slog.Duration("duration", d),
	}, kit.LogAttrs(ctx)...)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.LogAttrs(ctx, level, "sql statement", attrs...)
}

func values(named []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(named))
	for i, nv := range named {
		out[i] = nv.Value
	}
	return out
}
