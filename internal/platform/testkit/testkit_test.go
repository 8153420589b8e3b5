package testkit

import "testing"

func TestMustPanic(t *testing.T) {
	t.Parallel()

	MustPanic(t, func() {
		panic("missing config key PARSER_WORKERS")
	})
}

func TestMustContain(t *testing.T) {
	t.Parallel()

	out := `{"level":"info","component":"sched","msg":"job due"}`
	MustContain(t, out, "component")
	MustContain(t, out, "job due")
}
