// Package sched provides the in-process periodic job supervisor.
// Jobs are named closures invoked on an anchored cadence with
// single-flight semantics: a tick that fires while the previous
// invocation is still running is dropped, never queued
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shillwatch/internal/platform/clock"
	"shillwatch/internal/platform/logger"
	ptime "shillwatch/internal/platform/time"
)

// HandlerFunc is one scheduled job body
// Handlers own their side effects; the scheduler does no I/O itself
type HandlerFunc func(ctx context.Context) error

// JobStatus is the diagnostic view of a single job
type JobStatus struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	LastRun  *time.Time    `json:"lastRun,omitempty"`
}

type job struct {
	name     string
	interval time.Duration
	handler  HandlerFunc

	mu      sync.Mutex
	running bool // single-flight latch
	lastRun time.Time
	stop    chan struct{} // closed to cancel wake-ups; nil when not started
}

// Scheduler owns the job table. Construct one at startup and pass it
// into each job's constructor; there is no package-level singleton
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
	clk  clock.Clock
	log  logger.Logger
	wg   sync.WaitGroup
}

// New constructs a Scheduler; a nil clock means the system clock
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{
		jobs: make(map[string]*job),
		clk:  clk,
		log:  *logger.Named("sched"),
	}
}

// Register records a job under a unique name; re-registering a name
// replaces the previous entry (a started job keeps its loop until stopped)
func (s *Scheduler) Register(name string, interval time.Duration, h HandlerFunc) {
	if name == "" || interval <= 0 || h == nil {
		s.log.Warn().Str("job", name).Dur("interval", interval).Msg("sched: ignoring invalid job registration")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok && old.stop != nil {
		close(old.stop)
		old.stop = nil
	}
	s.jobs[name] = &job{name: name, interval: interval, handler: h}
}

// StartAll starts every registered job; handlers receive ctx
func (s *Scheduler) StartAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	s.mu.Unlock()
	for _, n := range names {
		s.StartJob(ctx, n)
	}
}

// StartJob invokes the handler once immediately, then on every tick
// anchored at start+k*interval. Unknown names are logged and ignored
func (s *Scheduler) StartJob(ctx context.Context, name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("sched: start of unregistered job")
		return
	}
	if j.stop != nil {
		s.mu.Unlock()
		return // already started
	}
	stop := make(chan struct{})
	j.stop = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, j, stop)
}

// StopJob cancels the job's scheduled wake-ups
// An in-flight handler completes normally
func (s *Scheduler) StopJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok && j.stop != nil {
		close(j.stop)
		j.stop = nil
	}
}

// StopAll cancels wake-ups for every job
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.stop != nil {
			close(j.stop)
			j.stop = nil
		}
	}
	s.mu.Unlock()
}

// Wait blocks until all job loops have returned; call after StopAll
func (s *Scheduler) Wait() { s.wg.Wait() }

// Status reports the running latch and last successful run per job
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus, len(s.jobs))
	for n, j := range s.jobs {
		j.mu.Lock()
		st := JobStatus{Running: j.running, Interval: j.interval, LastRun: ptime.Ptr(j.lastRun)}
		j.mu.Unlock()
		out[n] = st
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job, stop chan struct{}) {
	defer s.wg.Done()

	// immediate first run
	s.fire(ctx, j)

	// ticker anchors subsequent ticks at start+k*interval
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			s.fire(ctx, j)
		}
	}
}

// fire runs the handler once unless the single-flight latch is held,
// in which case the tick is dropped and logged
func (s *Scheduler) fire(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.log.Debug().Str("job", j.name).Msg("sched: tick dropped, previous run still in flight")
		return
	}
	j.running = true
	j.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.invoke(ctx, j)

		j.mu.Lock()
		j.running = false
		if err == nil {
			j.lastRun = s.clk.Now()
		}
		j.mu.Unlock()

		if err != nil {
			s.log.Error().Str("job", j.name).Err(err).Msg("sched: job failed")
		}
	}()
}

// invoke runs the handler with panic containment so a bad job
// never cancels its future ticks
func (s *Scheduler) invoke(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", j.name).Interface("panic", r).Msg("sched: job panicked")
			err = panicErr{v: r}
		}
	}()
	return j.handler(ctx)
}

type panicErr struct{ v any }

func (p panicErr) Error() string { return fmt.Sprintf("job panic: %v", p.v) }
