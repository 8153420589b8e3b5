// Package modkit provides the module pattern: shared deps, build
// options, and the registry modules publish their ports through
package modkit

import (
	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/config"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/platform/store"
)

// Deps carries the core dependencies handed to every module.
// PG and CH stay nil for modules that do not touch that backend
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}
