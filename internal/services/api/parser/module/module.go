// Package module wires the parser API surface using modkit
package module

import (
	"net/http"

	modkit "shillwatch/internal/modkit"
	"shillwatch/internal/modkit/httpkit"
	str "shillwatch/internal/platform/strings"

	parserhttp "shillwatch/internal/services/api/parser/http"
	execdom "shillwatch/internal/services/parserexec/domain"
)

// Ports declares the injected execution core port this API module needs
type Ports struct {
	Executor execdom.ExecutorPort
}

// Module implements the parser API module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	exec execdom.ExecutorPort
}

// New constructs the parser module around an injected executor port
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("parser"),
		modkit.WithPrefix("/parser"),
	}, opts...)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Executor == nil {
		panic("parser API module requires Executor port (from services/parserexec)")
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		exec:      injected.Executor,
	}
	m.ports = injected

	external := b.Register
	m.register = func(r httpkit.Router) {
		parserhttp.Register(r, m.exec)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "parser") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
