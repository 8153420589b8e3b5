package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"shillwatch/internal/platform/clock"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/services/parserexec/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultLocalBase = "http://localhost:5001"
	defaultUA        = "shillwatch-parserexec"
)

// Options configures the Dispatcher
type Options struct {
	// Timeout is the hard per-request deadline (default 30s)
	Timeout time.Duration

	// LocalBaseURL is the co-located parser address used by the
	// local_parser and proxy kinds (default http://localhost:5001)
	LocalBaseURL string

	// Session supplies the system-scoped session credential for the
	// local parser; nil means no credential
	Session func() string

	UserAgent string

	// Client overrides the shared HTTP client (tests)
	Client *http.Client

	Clock clock.Clock
}

// Dispatcher executes one task against one slot. Adapters are cached
// per slot id; the registry's resync hook invalidates the cache
type Dispatcher struct {
	opts Options
	clk  clock.Clock
	log  logger.Logger

	mu    sync.Mutex
	cache map[string]runtime
}

// New constructs a Dispatcher with sane defaults
func New(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.LocalBaseURL == "" {
		opts.LocalBaseURL = defaultLocalBase
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUA
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Dispatcher{
		opts:  opts,
		clk:   clk,
		log:   *logger.Named("parserexec.dispatch"),
		cache: make(map[string]runtime),
	}
}

// InvalidateCache drops all cached adapters; wired to registry resync
func (d *Dispatcher) InvalidateCache() {
	d.mu.Lock()
	d.cache = make(map[string]runtime)
	d.mu.Unlock()
}

// Dispatch implements domain.DispatcherPort
func (d *Dispatcher) Dispatch(ctx context.Context, slot domain.Slot, task domain.Task) domain.ExecutionResult {
	rt, err := d.adapterFor(slot)
	if err != nil {
		return domain.Failure(domain.CodeUnknownKind, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := d.clk.Now()
	res, err := rt.dispatch(ctx, task)
	elapsed := d.clk.Now().Sub(start).Milliseconds()

	if err != nil {
		code, msg := classify(err, slot.Kind)
		d.log.Warn().
			Str("slot", slot.ID).
			Str("task", task.ID).
			Str("code", string(code)).
			Err(err).
			Msg("dispatch failed")
		return domain.Failure(code, msg)
	}

	data := normalize(res, elapsed)
	return domain.ExecutionResult{
		OK:   true,
		Data: &data,
		Meta: &domain.Meta{
			AccountID:  task.AccountID,
			InstanceID: slot.ID,
			TaskID:     task.ID,
			DurationMs: elapsed,
		},
	}
}

// HealthCheck probes the slot's runtime
func (d *Dispatcher) HealthCheck(ctx context.Context, slot domain.Slot) error {
	rt, err := d.adapterFor(slot)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	return rt.healthCheck(ctx)
}

func (d *Dispatcher) adapterFor(slot domain.Slot) (runtime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rt, ok := d.cache[slot.ID]; ok {
		return rt, nil
	}

	var (
		rt  runtime
		err error
	)
	switch slot.Kind {
	case domain.KindRemoteWorker:
		rt = newRemoteRuntime(slot.BaseURL, d.opts.UserAgent, d.opts.Client)
	case domain.KindLocalParser:
		base := slot.BaseURL
		if base == "" {
			base = d.opts.LocalBaseURL
		}
		rt = newLocalRuntime(base, d.opts.UserAgent, d.opts.Session, d.opts.Client)
	case domain.KindProxy:
		rt, err = newProxyRuntime(slot.ProxyURL, d.opts.LocalBaseURL, d.opts.UserAgent, d.opts.Client)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unrecognized slot kind " + string(slot.Kind))
	}

	d.cache[slot.ID] = rt
	return rt, nil
}

// classify maps transport failures onto the closed error taxonomy
func classify(err error, kind domain.SlotKind) (domain.Code, string) {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusTooManyRequests {
			return domain.CodeSlotRateLimited, "upstream rejected with 429"
		}
		return domain.CodeRemoteError, statusErr.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CodeRemoteTimeout, "dispatch exceeded request deadline"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.CodeRemoteTimeout, "dispatch exceeded request deadline"
	}

	if kind == domain.KindProxy && errors.Is(err, syscall.ECONNREFUSED) {
		return domain.CodeProxyNotImplemented, "proxy could not reach local parser"
	}

	return domain.CodeRemoteError, err.Error()
}
