package repokit

import (
	"context"
	"fmt"
	"time"
)

type guarder interface {
	Guard(context.Context) error
}

// MustGuard runs the store's dependency guard and panics on any error.
// A default timeout is applied when ctx carries no deadline so startup
// fails fast instead of hanging on an unreachable database
func MustGuard(ctx context.Context, st guarder) {
	if st == nil {
		panic("repokit: nil store for guard")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := st.Guard(ctx); err != nil {
		panic(fmt.Errorf("dependency guard failed: %w", err))
	}
}
