package store

import (
	"context"
	"errors"
	"time"

	"shillwatch/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryTrace emits one event per statement to a configured tracer.
// A nil tracer makes emit a no-op so the zero value is safe
type queryTrace struct {
	tracer pg.QueryTracer
	slowUS int64
}

func (qt queryTrace) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if qt.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	qt.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsedUS,
		Err:       err,
		Slow:      qt.slowUS >= 0 && elapsedUS >= qt.slowUS,
	})
}

// pgAdapter wraps pg.PG and implements RowQuerier + TxRunner
type pgAdapter struct {
	p  *pg.PG
	qt queryTrace
}

func newPGAdapter(p *pg.PG) *pgAdapter {
	return &pgAdapter{
		p:  p,
		qt: queryTrace{tracer: p.Tracer, slowUS: int64(p.SlowMs) * 1000},
	}
}

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("pg: nil adapter")
	}
	var one int
	return a.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

func (a *pgAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := a.p.Pool.Exec(ctx, sql, args...)
	a.qt.emit(ctx, sql, args, start, err)
	return cmdTag{ct}, err
}

func (a *pgAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := a.p.Pool.Query(ctx, sql, args...)
	// traced on open; scan time is not included
	a.qt.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rowIter{r: rs}, nil
}

func (a *pgAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := a.p.Pool.QueryRow(ctx, sql, args...)
	// the event fires after Scan so it carries the scan error
	return tracedRow{
		r: r,
		after: func(scanErr error) {
			a.qt.emit(ctx, sql, args, start, scanErr)
		},
	}
}

func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	q := txQuerier{tx: tx, qt: a.qt}
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// txQuerier satisfies RowQuerier inside a transaction with the same
// tracing behavior as the pool paths
type txQuerier struct {
	tx pgx.Tx
	qt queryTrace
}

func (t txQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := t.tx.Exec(ctx, sql, args...)
	t.qt.emit(ctx, sql, args, start, err)
	return cmdTag{ct}, err
}

func (t txQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.tx.Query(ctx, sql, args...)
	t.qt.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rowIter{r: rs}, nil
}

func (t txQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := t.tx.QueryRow(ctx, sql, args...)
	return tracedRow{
		r: r,
		after: func(scanErr error) {
			t.qt.emit(ctx, sql, args, start, scanErr)
		},
	}
}

// shims from pgx to our tiny Row/Rows/CommandTag

type tracedRow struct {
	r     pgx.Row
	after func(error)
}

func (x tracedRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type rowIter struct{ r pgx.Rows }

func (x rowIter) Next() bool            { return x.r.Next() }
func (x rowIter) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x rowIter) Err() error            { return x.r.Err() }
func (x rowIter) Close()                { x.r.Close() }
func (x rowIter) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = string(f[i].Name)
	}
	return out
}

type cmdTag struct{ t pgconn.CommandTag }

func (t cmdTag) String() string      { return t.t.String() }
func (t cmdTag) RowsAffected() int64 { return t.t.RowsAffected() }
