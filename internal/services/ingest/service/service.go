// Package service implements the scheduled ingest jobs
package service

import (
	"context"
	"time"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/services/ingest/domain"
)

// Config controls per-run bounds for the ingest jobs
type Config struct {
	// MaxPages caps feed pages pulled in one transfers.ingest run
	MaxPages int

	// MinAmountUSD drops dust transfers below this value; zero keeps all
	MinAmountUSD float64

	// Cadences for the job catalog
	TransfersEvery time.Duration
	RollupEvery    time.Duration
	SnapshotEvery  time.Duration
	AccuracyEvery  time.Duration
}

// Deps carries the collaborators the ingest jobs need
type Deps struct {
	DB        repokit.TxRunner
	Binder    repokit.Binder[domain.StorageRepo]
	Analytics domain.AnalyticsRepo
	Feed      domain.FeedPort
	Clock     clock.Clock
}

// Service runs the ingest job catalog
type Service struct {
	deps Deps
	cfg  Config
	log  logger.Logger
}

// Job is one named scheduled unit of work
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// New constructs the ingest service
func New(deps Deps, cfg Config) *Service {
	if deps.DB == nil {
		panic("ingest.Service requires a non nil TxRunner")
	}
	if deps.Binder == nil {
		panic("ingest.Service requires a non nil StorageRepo binder")
	}
	if deps.Analytics == nil {
		panic("ingest.Service requires a non nil AnalyticsRepo")
	}
	if deps.Feed == nil {
		panic("ingest.Service requires a non nil FeedPort")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.TransfersEvery <= 0 {
		cfg.TransfersEvery = time.Minute
	}
	if cfg.RollupEvery <= 0 {
		cfg.RollupEvery = time.Hour
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 24 * time.Hour
	}
	if cfg.AccuracyEvery <= 0 {
		cfg.AccuracyEvery = time.Hour
	}
	return &Service{deps: deps, cfg: cfg, log: *logger.Named("ingest")}
}

// Jobs returns the catalog in registration order
func (s *Service) Jobs() []Job {
	return []Job{
		{Name: "transfers.ingest", Every: s.cfg.TransfersEvery, Run: s.IngestTransfers},
		{Name: "signals.rollup", Every: s.cfg.RollupEvery, Run: s.RollupSignals},
		{Name: "posts.snapshot", Every: s.cfg.SnapshotEvery, Run: s.SnapshotAccounts},
		{Name: "accuracy.check", Every: s.cfg.AccuracyEvery, Run: s.CheckAccuracy},
	}
}

// IngestTransfers pulls transfer pages from the feed, keeps rows for
// tracked tokens, and appends them to analytics. The cursor advances
// after each persisted page so a failed run resumes where it stopped
func (s *Service) IngestTransfers(ctx context.Context) error {
	return s.bracket(ctx, "transfers.ingest", func(ctx context.Context) (int, error) {
		var cursor string
		if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			cursor, err = s.deps.Binder.Bind(q).Cursor(ctx, "transfers.ingest")
			return err
		}); err != nil {
			return 0, err
		}

		tracked, err := s.trackedTokenSet(ctx)
		if err != nil {
			return 0, err
		}

		total := 0
		for page := 0; page < s.cfg.MaxPages; page++ {
			batch, next, err := s.deps.Feed.Pull(ctx, cursor)
			if err != nil {
				return total, err
			}
			if len(batch) == 0 {
				break
			}

			keep := batch
			if len(tracked) > 0 || s.cfg.MinAmountUSD > 0 {
				keep = keep[:0:0]
				for _, t := range batch {
					if len(tracked) > 0 && !tracked[t.Symbol] {
						continue
					}
					if s.cfg.MinAmountUSD > 0 && t.AmountUSD < s.cfg.MinAmountUSD {
						continue
					}
					keep = append(keep, t)
				}
			}
			if err := s.deps.Analytics.InsertTransfers(ctx, keep); err != nil {
				return total, err
			}
			total += len(keep)

			if next == "" || next == cursor {
				cursor = next
				break
			}
			cursor = next
			if err := s.saveCursor(ctx, cursor); err != nil {
				return total, err
			}
		}
		return total, nil
	})
}

// RollupSignals materializes the previous full hour
func (s *Service) RollupSignals(ctx context.Context) error {
	return s.bracket(ctx, "signals.rollup", func(ctx context.Context) (int, error) {
		hour := s.deps.Clock.Now().Truncate(time.Hour).Add(-time.Hour)
		return 0, s.deps.Analytics.RollupSignals(ctx, hour)
	})
}

// SnapshotAccounts writes daily counts for the previous UTC day
func (s *Service) SnapshotAccounts(ctx context.Context) error {
	return s.bracket(ctx, "posts.snapshot", func(ctx context.Context) (int, error) {
		var accounts []string
		if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			accounts, err = s.deps.Binder.Bind(q).ListTrackedAccounts(ctx)
			return err
		}); err != nil {
			return 0, err
		}

		day := s.deps.Clock.Now().Truncate(24 * time.Hour).Add(-24 * time.Hour)
		return len(accounts), s.deps.Analytics.SnapshotAccounts(ctx, day, accounts)
	})
}

// CheckAccuracy measures drift for the hour two buckets back, so the
// realized follow-up hour is already complete
func (s *Service) CheckAccuracy(ctx context.Context) error {
	return s.bracket(ctx, "accuracy.check", func(ctx context.Context) (int, error) {
		hour := s.deps.Clock.Now().Truncate(time.Hour).Add(-2 * time.Hour)
		points, err := s.deps.Analytics.AccuracyPoints(ctx, hour)
		if err != nil {
			return 0, err
		}
		return len(points), s.deps.Analytics.InsertAccuracy(ctx, points)
	})
}

// bracket records a run row around fn, nightshift style: the finish row
// is written even when fn fails, and fn's error is what the caller sees
func (s *Service) bracket(ctx context.Context, job string, fn func(ctx context.Context) (int, error)) error {
	start := s.deps.Clock.Now()

	var runID int64
	if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		id, err := s.deps.Binder.Bind(q).StartRun(ctx, job, start)
		runID = id
		return err
	}); err != nil {
		return err
	}

	rows, runErr := fn(ctx)

	fin := domain.RunInfo{
		Status:  "ok",
		Rows:    rows,
		TotalMS: int(s.deps.Clock.Now().Sub(start).Milliseconds()),
	}
	if runErr != nil {
		fin.Status = "error"
		fin.ErrText = runErr.Error()
	}
	if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Binder.Bind(q).FinishRun(ctx, runID, fin)
	}); err != nil {
		s.log.Warn().Err(err).Str("job", job).Msg("ingest finish-run write failed")
	}

	if runErr != nil {
		s.log.Error().Err(runErr).Str("job", job).Int("rows", rows).Msg("ingest job failed")
	} else {
		s.log.Info().Str("job", job).Int("rows", rows).Msg("ingest job done")
	}
	return runErr
}

func (s *Service) trackedTokenSet(ctx context.Context) (map[string]bool, error) {
	var symbols []string
	if err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		symbols, err = s.deps.Binder.Bind(q).ListTrackedTokens(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		set[sym] = true
	}
	return set, nil
}

func (s *Service) saveCursor(ctx context.Context, cursor string) error {
	return s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Binder.Bind(q).SetCursor(ctx, "transfers.ingest", cursor, s.deps.Clock.Now())
	})
}
