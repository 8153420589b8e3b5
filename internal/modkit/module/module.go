// Package module holds the module contract and the ports registry.
// It sits beside modkit so a module can export its own ports type
// without creating an import knot
package module

import (
	phttp "shillwatch/internal/platform/net/http"
)

// Module is the minimal contract the registry and port helpers need
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
