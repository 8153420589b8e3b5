// Package api provides the HTTP API for the application
package api

import (
	"shillwatch/internal/platform/config"
	"shillwatch/internal/platform/logger"
	phttp "shillwatch/internal/platform/net/http"
	"shillwatch/internal/platform/sched"
	"shillwatch/internal/platform/store"

	"shillwatch/internal/modkit"
	"shillwatch/internal/modkit/httpkit"
	"shillwatch/internal/modkit/module"
	"shillwatch/internal/modkit/swaggerkit"

	metamod "shillwatch/internal/services/api/meta/module"
	apiparser "shillwatch/internal/services/api/parser/module"
	apisched "shillwatch/internal/services/api/sched/module"

	// Execution core module (owns the Executor port)
	ingestmod "shillwatch/internal/services/ingest/module"
	parserexec "shillwatch/internal/services/parserexec/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	Sched          *sched.Scheduler
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}

	// Ingest owns the posts writer the execution core persists through
	ingest := ingestmod.New(deps, ingestmod.Options{})
	posts := ingest.Ports().(ingestmod.Ports).Posts

	// Construct the execution core and extract its Executor port
	core := parserexec.New(deps, parserexec.Options{}, posts)
	exec := module.MustPortsOf[parserexec.Ports](core).Executor

	// Inject that Executor into the parser API module
	parserAPI := apiparser.New(
		deps,
		modkit.WithPorts(apiparser.Ports{
			Executor: exec,
		}),
	)

	mods := []module.Module{
		core, // include the core so its ports are registered
		parserAPI,
	}
	if opt.Sched != nil {
		mods = append(mods, apisched.New(
			deps,
			modkit.WithPorts(apisched.Ports{Scheduler: opt.Sched}),
		))
	}

	// probes live at the server root, outside /api/v1
	meta := metamod.New(deps)
	module.Register(meta.Name(), meta.Ports())
	meta.MountRoutes(r)

	// versioned API with a common middleware stack
	stack := httpkit.CommonStack(opt.Config.MayCSV("CORS_ORIGINS", nil)...)
	httpkit.MountAPIV1(r, stack, func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
