// Package module wires the parser execution core and exposes its ports
package module

import (
	"context"

	"shillwatch/internal/modkit"
	"shillwatch/internal/modkit/httpkit"
	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	"shillwatch/internal/services/parserexec/dispatch"
	"shillwatch/internal/services/parserexec/domain"
	"shillwatch/internal/services/parserexec/registry"
	"shillwatch/internal/services/parserexec/repo"
	"shillwatch/internal/services/parserexec/service"
)

// Ports exposed by the execution core
type Ports struct {
	Executor domain.ExecutorPort

	// Registry is exposed so callers can schedule its sync cadence
	Registry *registry.Registry
}

// Module defines the execution core module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the execution core. Results may be nil to disable
// collaborator post persistence
func New(deps modkit.Deps, overrides Options, results domain.ResultsWriter) *Module {
	opts := FromConfig(deps.Cfg)

	if overrides.SyncEvery != 0 {
		opts.SyncEvery = overrides.SyncEvery
	}
	if overrides.StaleAfter != 0 {
		opts.StaleAfter = overrides.StaleAfter
	}
	if overrides.DispatchTimeout != 0 {
		opts.DispatchTimeout = overrides.DispatchTimeout
	}
	if overrides.LocalBaseURL != "" {
		opts.LocalBaseURL = overrides.LocalBaseURL
	}
	if overrides.SessionToken != "" {
		opts.SessionToken = overrides.SessionToken
	}
	if overrides.PollEvery != 0 {
		opts.PollEvery = overrides.PollEvery
	}
	if overrides.MaxAttempts != 0 {
		opts.MaxAttempts = overrides.MaxAttempts
	}

	clk := clock.System{}
	binder := repo.NewPG()

	// cap lock waits inside core transactions so a contended settle
	// cannot stall the worker loop past its poll interval; a timeout
	// surfaces as 55P03 which the settle path treats as retryable
	lockTimeout := func(ctx context.Context, q repokit.Queryer) error {
		_, err := q.Exec(ctx, "SET LOCAL lock_timeout = '2s'")
		return err
	}
	db := repokit.WithBeginHooks(repokit.TxRunner(deps.PG), lockTimeout)

	reg := registry.New(db, binder, clk, registry.Config{
		SyncEvery:  opts.SyncEvery,
		StaleAfter: opts.StaleAfter,
	})

	var session func() string
	if opts.SessionToken != "" {
		tok := opts.SessionToken
		session = func() string { return tok }
	}
	disp := dispatch.New(dispatch.Options{
		Timeout:      opts.DispatchTimeout,
		LocalBaseURL: opts.LocalBaseURL,
		Session:      session,
		UserAgent:    opts.UserAgent,
		Clock:        clk,
	})

	// slot config changes take effect on the next dispatch
	reg.OnResync(disp.InvalidateCache)

	svc := service.New(service.Deps{
		Registry:   reg,
		Dispatcher: disp,
		DB:         db,
		Binder:     binder,
		Results:    results,
		Clock:      clk,
	}, service.Config{
		PollEvery:          opts.PollEvery,
		DefaultMaxAttempts: opts.MaxAttempts,
	})

	m := &Module{deps: deps}
	m.ports = Ports{
		Executor: svc,
		Registry: reg,
	}
	return m
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "parserexec" }

// Prefix returns the module route prefix (none, transport lives in the API)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
