package modkit

import (
	"testing"

	phttp "shillwatch/internal/platform/net/http"
)

// stub module that satisfies Module and records calls
type stub struct {
	mounted bool
	ports   any
}

func (s *stub) MountRoutes(_ phttp.Router) { s.mounted = true }
func (s *stub) Ports() any                 { return s.ports }
func (s *stub) Name() string               { return "parserexec" }

var _ Module = (*stub)(nil)

func TestModule_InterfaceSurface(t *testing.T) {
	t.Parallel()

	m := &stub{ports: "executor"}

	// typed nil router is fine; just validate call flow
	var r phttp.Router
	m.MountRoutes(r)

	if !m.mounted {
		t.Fatal("expected MountRoutes to be called")
	}
	if got := m.Ports(); got != "executor" {
		t.Fatalf("unexpected Ports value: got=%v want=executor", got)
	}
	if m.Name() != "parserexec" {
		t.Fatalf("unexpected Name %q", m.Name())
	}
}
