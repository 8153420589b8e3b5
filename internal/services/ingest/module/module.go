// Package module wires the ingest job catalog and its feed adapter
package module

import (
	"context"

	"shillwatch/internal/adapters/ingest/chainfeed"
	"shillwatch/internal/modkit"
	"shillwatch/internal/modkit/httpkit"
	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	execdom "shillwatch/internal/services/parserexec/domain"

	"shillwatch/internal/services/ingest/domain"
	"shillwatch/internal/services/ingest/repo"
	"shillwatch/internal/services/ingest/service"
)

// Ports exposed by the ingest module
type Ports struct {
	// Service owns the scheduled job catalog
	Service *service.Service

	// Posts is handed to the execution core as its results seam
	Posts execdom.ResultsWriter
}

// Module defines the ingest module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the ingest module
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)

	if overrides.FeedBaseURL != "" {
		opts.FeedBaseURL = overrides.FeedBaseURL
	}
	if overrides.FeedAPIKey != "" {
		opts.FeedAPIKey = overrides.FeedAPIKey
	}
	if overrides.FeedPageLimit != 0 {
		opts.FeedPageLimit = overrides.FeedPageLimit
	}
	if overrides.MaxPages != 0 {
		opts.MaxPages = overrides.MaxPages
	}
	if overrides.MinAmountUSD != 0 {
		opts.MinAmountUSD = overrides.MinAmountUSD
	}
	if overrides.TransfersEvery != 0 {
		opts.TransfersEvery = overrides.TransfersEvery
	}
	if overrides.RollupEvery != 0 {
		opts.RollupEvery = overrides.RollupEvery
	}
	if overrides.SnapshotEvery != 0 {
		opts.SnapshotEvery = overrides.SnapshotEvery
	}
	if overrides.AccuracyEvery != 0 {
		opts.AccuracyEvery = overrides.AccuracyEvery
	}

	feed := &feedAdapter{client: chainfeed.NewClient(chainfeed.Options{
		BaseURL:   opts.FeedBaseURL,
		APIKey:    opts.FeedAPIKey,
		PageLimit: opts.FeedPageLimit,
	})}

	svc := service.New(service.Deps{
		DB:        repokit.TxRunner(deps.PG),
		Binder:    repo.NewPG(),
		Analytics: repo.NewAnalytics(deps.CH),
		Feed:      feed,
		Clock:     clock.System{},
	}, service.Config{
		MaxPages:       opts.MaxPages,
		MinAmountUSD:   opts.MinAmountUSD,
		TransfersEvery: opts.TransfersEvery,
		RollupEvery:    opts.RollupEvery,
		SnapshotEvery:  opts.SnapshotEvery,
		AccuracyEvery:  opts.AccuracyEvery,
	})

	m := &Module{deps: deps}
	m.ports = Ports{
		Service: svc,
		Posts:   repo.NewPostsWriter(deps.CH),
	}
	return m
}

// feedAdapter bridges the chainfeed client to the ingest feed port
type feedAdapter struct {
	client *chainfeed.Client
}

var _ domain.FeedPort = (*feedAdapter)(nil)

func (f *feedAdapter) Pull(ctx context.Context, cursor string) ([]domain.Transfer, string, error) {
	b, err := f.client.Transfers(ctx, cursor)
	if err != nil {
		return nil, "", err
	}
	out := make([]domain.Transfer, 0, len(b.Transfers))
	for _, t := range b.Transfers {
		out = append(out, domain.Transfer{
			TxHash:    t.TxHash,
			Chain:     t.Chain,
			TokenAddr: t.TokenAddr,
			Symbol:    t.Symbol,
			FromAddr:  t.FromAddr,
			ToAddr:    t.ToAddr,
			Amount:    t.Amount,
			AmountUSD: t.AmountUSD,
			BlockTime: t.BlockTime,
		})
	}
	return out, b.NextCursor, nil
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "ingest" }

// Prefix returns the module route prefix (none, jobs run in the daemon)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
