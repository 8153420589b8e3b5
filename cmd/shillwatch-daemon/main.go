package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"shillwatch/internal/modkit"
	"shillwatch/internal/modkit/module"
	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/config"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/platform/sched"
	"shillwatch/internal/platform/store"

	ingestmod "shillwatch/internal/services/ingest/module"
	parserexec "shillwatch/internal/services/parserexec/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	schedCfg := root.Prefix("CORE_SCHED_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled:    true,
			URL:        chCfg.MustString("DBURL"),
			ClientName: "shillwatch",
			ClientTag:  "daemon",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// refuse to start jobs until both seams answer
	repokit.MustGuard(context.Background(), st)

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	// Ingest owns the job catalog and the posts writer
	ingest := ingestmod.New(deps, ingestmod.Options{})
	module.Register(ingest.Name(), ingest.Ports())
	ing := module.MustPortsOf[ingestmod.Ports](ingest)

	// Execution core persists fetched posts through ingest
	core := parserexec.New(deps, parserexec.Options{}, ing.Posts)
	module.Register(core.Name(), core.Ports())
	ports := module.MustPortsOf[parserexec.Ports](core)

	// drain on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := sched.New(nil)
	for _, j := range ing.Service.Jobs() {
		sc.Register(j.Name, j.Every, j.Run)
	}
	sc.Register("slots.sync", ports.Registry.SyncEvery(), ports.Registry.Sync)

	sc.StartAll(ctx)
	ports.Executor.StartWorker(ctx)

	l.Info().Msg("shillwatch daemon running")
	<-ctx.Done()
	l.Info().Msg("shillwatch daemon draining")

	// Bounded drain: let the in-flight task and job runs settle
	drainCtx, cancel := context.WithTimeout(
		context.Background(),
		schedCfg.MayDuration("DRAIN_TIMEOUT", 30*time.Second),
	)
	defer cancel()

	sc.StopAll()
	ports.Executor.StopWorker(drainCtx)
	sc.Wait()

	l.Info().Msg("shillwatch daemon stopped")
}
