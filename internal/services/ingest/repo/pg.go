// Package repo provides the Postgres bookkeeping and ClickHouse analytics
// persistence for ingest jobs
package repo

import (
	"context"
	"time"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/store"
	"shillwatch/internal/services/ingest/domain"
)

type (
	// PG is a Postgres ingest bookkeeping repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres ingest bookkeeping repository
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of StorageRepo
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// StartRun opens a run row and returns its id
func (r *queries) StartRun(ctx context.Context, job string, at time.Time) (int64, error) {
	const sql = `
		INSERT INTO ingest_runs (job, started_at, status)
		VALUES ($1, $2, 'running')
		RETURNING id
	`
	var id int64
	if err := r.q.QueryRow(ctx, sql, job, at.UTC()).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// FinishRun closes a run row with its outcome
func (r *queries) FinishRun(ctx context.Context, runID int64, fin domain.RunInfo) error {
	const sql = `
		UPDATE ingest_runs
		SET finished_at = now(),
		    status      = $2,
		    row_count   = $3,
		    total_ms    = $4,
		    err_text    = NULLIF($5, '')
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, sql, runID, fin.Status, fin.Rows, fin.TotalMS, fin.ErrText)
	return err
}

// Cursor returns the resume cursor for job, empty when absent
func (r *queries) Cursor(ctx context.Context, job string) (string, error) {
	const sql = `
		SELECT COALESCE(MAX(cursor), '')
		FROM ingest_cursors
		WHERE job = $1
	`
	return store.Scalar[string](ctx, r.q, sql, job)
}

// SetCursor upserts the resume cursor for job
func (r *queries) SetCursor(ctx context.Context, job, cursor string, at time.Time) error {
	const sql = `
		INSERT INTO ingest_cursors (job, cursor, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job) DO UPDATE
		SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at
	`
	_, err := r.q.Exec(ctx, sql, job, cursor, at.UTC())
	return err
}

// ListTrackedTokens returns enabled token symbols in a stable order
func (r *queries) ListTrackedTokens(ctx context.Context) ([]string, error) {
	return r.listEnabled(ctx, `
		SELECT symbol FROM tracked_tokens
		WHERE enabled = TRUE
		ORDER BY symbol
	`)
}

// ListTrackedAccounts returns enabled account usernames in a stable order
func (r *queries) ListTrackedAccounts(ctx context.Context) ([]string, error) {
	return r.listEnabled(ctx, `
		SELECT username FROM tracked_accounts
		WHERE enabled = TRUE
		ORDER BY username
	`)
}

func (r *queries) listEnabled(ctx context.Context, sql string) ([]string, error) {
	return store.Many(ctx, r.q, func(row store.Row) (string, error) {
		var s string
		err := row.Scan(&s)
		return s, err
	}, sql)
}
