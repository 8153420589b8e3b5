package modkit

import (
	phttp "shillwatch/internal/platform/net/http"
)

// Module is the common surface API modules expose. Kept tiny so
// modules stay decoupled from each other
type Module interface {
	// MountRoutes attaches the module's HTTP routes to the router seam
	MountRoutes(r phttp.Router)
	// Ports returns the module's port set for cross module wiring
	Ports() any

	Name() string
}
