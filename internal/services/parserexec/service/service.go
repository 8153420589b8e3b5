// Package service implements the rate limited execution core: the
// executor that fronts the slot registry, selector, dispatcher and the
// durable task queue
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	perr "shillwatch/internal/platform/errors"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/services/parserexec/domain"
	"shillwatch/internal/services/parserexec/registry"
	"shillwatch/internal/services/parserexec/selector"
)

// Deps carries the executor's collaborators
type Deps struct {
	Registry   *registry.Registry
	Dispatcher domain.DispatcherPort
	DB         repokit.TxRunner
	Binder     repokit.Binder[domain.StorageRepo]

	// Results receives fetched posts after a completed queue task;
	// nil disables collaborator persistence
	Results domain.ResultsWriter

	Clock clock.Clock
}

// Config tunes the executor
type Config struct {
	// PollEvery is the worker's fallback poll cadence (default 2s)
	PollEvery time.Duration

	// DefaultMaxAttempts applies when an enqueue does not set one
	// (default 3)
	DefaultMaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.PollEvery <= 0 || c.PollEvery > 2*time.Second {
		c.PollEvery = 2 * time.Second
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = 3
	}
	return c
}

// Svc is the executor; it implements domain.ExecutorPort
type Svc struct {
	deps Deps
	cfg  Config
	clk  clock.Clock
	log  logger.Logger

	// slotLocks serializes dispatch per slot id so concurrent callers
	// never lose counter increments
	slotMu    sync.Mutex
	slotLocks map[string]*sync.Mutex

	nudge chan struct{}

	workerMu    sync.Mutex
	workerState string
	workerStop  chan struct{}
	workerDone  chan struct{}
}

// New constructs the executor
func New(deps Deps, cfg Config) *Svc {
	if deps.Registry == nil {
		panic("parserexec service requires a Registry")
	}
	if deps.Dispatcher == nil {
		panic("parserexec service requires a Dispatcher")
	}
	if deps.DB == nil || deps.Binder == nil {
		panic("parserexec service requires DB and Binder")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Svc{
		deps:        deps,
		cfg:         cfg.withDefaults(),
		clk:         clk,
		log:         *logger.Named("parserexec"),
		slotLocks:   make(map[string]*sync.Mutex),
		nudge:       make(chan struct{}, 1),
		workerState: WorkerStopped,
	}
}

// RunSearchSync executes a post search on the best available slot
func (s *Svc) RunSearchSync(ctx context.Context, query string, maxResults int) domain.ExecutionResult {
	return s.runSync(ctx, domain.SearchPayload{Query: query, MaxResults: maxResults})
}

// RunAccountTweetsSync fetches an account's recent posts
func (s *Svc) RunAccountTweetsSync(ctx context.Context, username string, maxResults int) domain.ExecutionResult {
	return s.runSync(ctx, domain.AccountTweetsPayload{Username: username, MaxResults: maxResults})
}

// RunAccountFollowersSync fetches an account's followers
func (s *Svc) RunAccountFollowersSync(ctx context.Context, username string, maxResults int) domain.ExecutionResult {
	return s.runSync(ctx, domain.AccountFollowersPayload{Username: username, MaxResults: maxResults})
}

// runSync is the synchronous path: account gate, snapshot, selection,
// dispatch, accounting, one write-back
func (s *Svc) runSync(ctx context.Context, p domain.Payload) domain.ExecutionResult {
	now := s.clk.Now()
	snap := s.deps.Registry.Snapshot(ctx)

	if !anyEnabledAccount(snap.Accounts) {
		return domain.Failure(domain.CodeNoActiveAccount, "no active account available")
	}

	dec := selector.Pick(now, snap.Slots)
	s.persistResets(ctx, dec.Resets)
	if dec.NoSlot != nil {
		return domain.Failure(domain.CodeNoAvailableSlot, dec.NoSlot.Reason())
	}
	slot := *dec.Slot

	task := domain.Task{
		ID:        uuid.NewString(),
		Type:      p.TaskType(),
		Payload:   p,
		AccountID: s.accountFor(slot, snap.Accounts),
		Status:    domain.StatusRunning,
		CreatedAt: now,
	}
	return s.execute(ctx, slot, task)
}

// execute dispatches under the slot's lock and writes the outcome back.
// The mirror is re-read under the lock so a concurrent dispatch on the
// same slot sees the freshest counters
func (s *Svc) execute(ctx context.Context, slot domain.Slot, task domain.Task) domain.ExecutionResult {
	mu := s.lockFor(slot.ID)
	mu.Lock()
	defer mu.Unlock()

	if cur, ok := s.deps.Registry.Slot(slot.ID); ok {
		cur.AccountID = slot.AccountID
		slot = cur
	}

	// Eligibility is re-checked under the lock: a concurrent dispatch may
	// have consumed the last unit of quota between selection and here
	now := s.clk.Now()
	if slot.WindowRolled(now) {
		slot.UsedInWindow = 0
		slot.WindowStart = now
	}
	if !slot.Eligible(now) {
		return domain.Failure(domain.CodeNoAvailableSlot,
			"slot "+slot.ID+" became unavailable before dispatch")
	}

	res := s.deps.Dispatcher.Dispatch(ctx, slot, task)

	wb := applyOutcome(slot, res.Code, s.clk.Now())
	if err := s.deps.Registry.WriteBack(ctx, wb); err != nil {
		s.log.Error().Str("slot", slot.ID).Err(err).Msg("slot write back failed")
	}
	return res
}

func (s *Svc) lockFor(slotID string) *sync.Mutex {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	mu, ok := s.slotLocks[slotID]
	if !ok {
		mu = &sync.Mutex{}
		s.slotLocks[slotID] = mu
	}
	return mu
}

// persistResets stores hourly bucket rollovers reported by the
// selector, even when selection itself then fails
func (s *Svc) persistResets(ctx context.Context, resets []domain.Slot) {
	for _, r := range resets {
		wb := domain.SlotWriteBack{
			SlotID:              r.ID,
			UsedInWindow:        r.UsedInWindow,
			WindowStart:         r.WindowStart,
			Health:              r.Health,
			CooldownUntil:       r.CooldownUntil,
			ConsecutiveTimeouts: r.ConsecutiveTimeouts,
		}
		if err := s.deps.Registry.WriteBack(ctx, wb); err != nil {
			s.log.Warn().Str("slot", r.ID).Err(err).Msg("persisting hourly reset failed")
		}
	}
}

func (s *Svc) accountFor(slot domain.Slot, accounts []domain.Account) string {
	if slot.AccountID != "" {
		return slot.AccountID
	}
	return firstEnabledAccount(accounts)
}

func firstEnabledAccount(accounts []domain.Account) string {
	for _, a := range accounts {
		if a.Enabled {
			return a.ID
		}
	}
	return ""
}

func anyEnabledAccount(accounts []domain.Account) bool {
	for _, a := range accounts {
		if a.Enabled {
			return true
		}
	}
	return false
}

// Enqueue persists a task for asynchronous execution, making sure the
// worker is running, and nudges it. Work is rejected up front when no
// enabled account exists, so a queued task always carries the account
// it will run under. The returned id is usable with TaskStatus
// immediately
func (s *Svc) Enqueue(ctx context.Context, p domain.Payload, opts domain.EnqueueOpts) (string, error) {
	if p == nil {
		return "", perr.InvalidArgf("payload is required")
	}

	snap := s.deps.Registry.Snapshot(ctx)
	accountID := firstEnabledAccount(snap.Accounts)
	if accountID == "" {
		return "", perr.Unavailablef("%s: no enabled account", domain.CodeNoActiveAccount)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}

	now := s.clk.Now()
	t := domain.Task{
		ID:          uuid.NewString(),
		Type:        p.TaskType(),
		Payload:     p,
		AccountID:   accountID,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		Status:      domain.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Binder.Bind(q).EnqueueTask(ctx, t)
	})
	if err != nil {
		return "", err
	}

	s.StartWorker(ctx)
	s.nudgeWorker()
	return t.ID, nil
}

// TaskStatus looks a task up by id; Found is false for unknown ids
func (s *Svc) TaskStatus(ctx context.Context, taskID string) (domain.TaskStatusView, error) {
	var (
		t  domain.Task
		ok bool
	)
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		t, ok, err = s.deps.Binder.Bind(q).GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return domain.TaskStatusView{}, err
	}
	if !ok {
		return domain.TaskStatusView{}, nil
	}

	view := domain.TaskStatusView{Found: true, Task: &t}
	if t.Status == domain.StatusDone {
		view.Result = t.Result
	}
	return view, nil
}

// ResetCounters zeroes usage and cooldowns across all slots
func (s *Svc) ResetCounters(ctx context.Context) error {
	return s.deps.Registry.ResetAllCounters(ctx)
}
