package domain

import (
	"context"
	"time"
)

// StorageRepo is the Postgres bookkeeping surface for ingest jobs.
// Runs bracket each job execution; cursors make transfer pulls resumable
type StorageRepo interface {
	// StartRun inserts a running row for job and returns its id
	StartRun(ctx context.Context, job string, at time.Time) (int64, error)

	// FinishRun closes a run row with its outcome
	FinishRun(ctx context.Context, runID int64, fin RunInfo) error

	// Cursor returns the saved resume cursor for job, empty when none
	Cursor(ctx context.Context, job string) (string, error)

	// SetCursor upserts the resume cursor for job
	SetCursor(ctx context.Context, job, cursor string, at time.Time) error

	// ListTrackedTokens returns the token symbols ingest should keep
	ListTrackedTokens(ctx context.Context) ([]string, error)

	// ListTrackedAccounts returns the social accounts snapshots cover
	ListTrackedAccounts(ctx context.Context) ([]string, error)
}

// AnalyticsRepo is the ClickHouse write surface for ingest jobs
type AnalyticsRepo interface {
	// InsertTransfers appends normalized transfers to shillwatch.transfers
	InsertTransfers(ctx context.Context, rows []Transfer) error

	// RollupSignals materializes one hour of hype signals from posts
	// and transfers into shillwatch.signal_rollups (idempotent per hour)
	RollupSignals(ctx context.Context, hour time.Time) error

	// SnapshotAccounts writes one daily count row per tracked account
	SnapshotAccounts(ctx context.Context, day time.Time, accounts []string) error

	// AccuracyPoints computes predicted-vs-realized drift for an hour
	AccuracyPoints(ctx context.Context, hour time.Time) ([]AccuracyPoint, error)

	// InsertAccuracy appends drift rows to shillwatch.signal_accuracy
	InsertAccuracy(ctx context.Context, rows []AccuracyPoint) error
}

// FeedPort pulls transfer batches from the upstream chain feed
type FeedPort interface {
	// Pull fetches one page after cursor and returns the next cursor
	Pull(ctx context.Context, cursor string) ([]Transfer, string, error)
}
