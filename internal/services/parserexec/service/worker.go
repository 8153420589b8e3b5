package service

import (
	"context"
	"fmt"
	"time"

	"shillwatch/internal/modkit/repokit"
	perr "shillwatch/internal/platform/errors"
	"shillwatch/internal/services/parserexec/domain"
	"shillwatch/internal/services/parserexec/selector"
)

// Worker lifecycle states
const (
	WorkerStopped  = "stopped"
	WorkerRunning  = "running"
	WorkerDraining = "draining"
)

// StartWorker launches the queue drain loop. Idempotent while running
func (s *Svc) StartWorker(ctx context.Context) {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	if s.workerState != WorkerStopped {
		return
	}
	s.workerState = WorkerRunning
	s.workerStop = make(chan struct{})
	s.workerDone = make(chan struct{})

	// the loop outlives the caller's request scope
	go s.workerLoop(context.WithoutCancel(ctx), s.workerStop, s.workerDone)
	s.log.Info().Msg("worker started")
}

// StopWorker drains the in-flight task and stops the loop. Blocks until
// the loop exits or ctx is done; either way new leases stop immediately
func (s *Svc) StopWorker(ctx context.Context) {
	s.workerMu.Lock()
	if s.workerState != WorkerRunning {
		s.workerMu.Unlock()
		return
	}
	s.workerState = WorkerDraining
	stop, done := s.workerStop, s.workerDone
	s.workerMu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
	}

	s.workerMu.Lock()
	s.workerState = WorkerStopped
	s.workerMu.Unlock()
	s.log.Info().Msg("worker stopped")
}

// WorkerState reports stopped, running or draining
func (s *Svc) WorkerState() string {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	return s.workerState
}

func (s *Svc) nudgeWorker() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// workerLoop drains the queue, then sleeps until a nudge or the
// fallback poll tick. A lease error backs off to the next tick
func (s *Svc) workerLoop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(s.cfg.PollEvery)
	defer t.Stop()

	for {
		for {
			select {
			case <-stop:
				return
			default:
			}
			worked, err := s.processNext(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("queue lease failed")
				break
			}
			if !worked {
				break
			}
		}

		select {
		case <-stop:
			return
		case <-s.nudge:
		case <-t.C:
		}
	}
}

// processNext leases at most one task and runs it to a settled state.
// Returns false when the queue had nothing leasable
func (s *Svc) processNext(ctx context.Context) (bool, error) {
	now := s.clk.Now()
	var (
		task domain.Task
		ok   bool
	)
	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		task, ok, err = s.deps.Binder.Bind(q).LeaseNextTask(ctx, now)
		return err
	})
	if err != nil || !ok {
		return false, err
	}

	s.processTask(ctx, task)
	return true, nil
}

// processTask runs one leased task through selection and dispatch.
// Slot accounting is applied inside execute regardless of whether the
// task is completed, requeued or failed
func (s *Svc) processTask(ctx context.Context, task domain.Task) {
	now := s.clk.Now()
	snap := s.deps.Registry.Snapshot(ctx)

	if !anyEnabledAccount(snap.Accounts) {
		s.settleFailure(ctx, task, domain.CodeNoActiveAccount, "no active account available")
		return
	}

	dec := selector.Pick(now, snap.Slots)
	s.persistResets(ctx, dec.Resets)
	if dec.NoSlot != nil {
		s.settleFailure(ctx, task, domain.CodeNoAvailableSlot, dec.NoSlot.Reason())
		return
	}
	slot := *dec.Slot
	if task.AccountID == "" {
		task.AccountID = s.accountFor(slot, snap.Accounts)
	}

	err := s.deps.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.deps.Binder.Bind(q).MarkTaskRunningSlot(ctx, task.ID, slot.ID, now)
	})
	if err != nil {
		s.log.Warn().Str("task", task.ID).Err(err).Msg("stamping task slot failed")
	}

	res := s.execute(ctx, slot, task)
	if res.OK {
		s.settleSuccess(ctx, task, *res.Data)
		return
	}
	s.settleFailure(ctx, task, res.Code, res.Error)
}

// settleTx runs a settlement write, retrying once when the database
// reports transient contention. Losing a settlement would strand the
// task in running state until the lease expires
func (s *Svc) settleTx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	err := s.deps.DB.Tx(ctx, fn)
	if err != nil && perr.IsRetryable(err) {
		err = s.deps.DB.Tx(ctx, fn)
	}
	return err
}

func (s *Svc) settleSuccess(ctx context.Context, task domain.Task, res domain.Result) {
	now := s.clk.Now()
	err := s.settleTx(ctx, func(q repokit.Queryer) error {
		return s.deps.Binder.Bind(q).CompleteTask(ctx, task.ID, res, now)
	})
	if err != nil {
		s.log.Error().Str("task", task.ID).Err(err).Msg("completing task failed")
		return
	}

	if s.deps.Results != nil && len(res.Posts) > 0 {
		if err := s.deps.Results.WritePosts(ctx, task.ID, res.Posts); err != nil {
			// the task stays done; post persistence is best effort
			s.log.Warn().Str("task", task.ID).Err(err).Msg("writing fetched posts failed")
		}
	}
}

// settleFailure counts the attempt and either requeues or terminally
// fails the task once attempts reach the cap
func (s *Svc) settleFailure(ctx context.Context, task domain.Task, code domain.Code, msg string) {
	attempts := task.Attempts + 1
	now := s.clk.Now()

	err := s.settleTx(ctx, func(q repokit.Queryer) error {
		repo := s.deps.Binder.Bind(q)
		if attempts >= task.MaxAttempts {
			// the terminal error code is the last dispatch outcome, the
			// attempt cap itself only shows up in the message
			final := fmt.Sprintf("gave up after %d attempts, last error (%s): %s", attempts, code, msg)
			return repo.FailTask(ctx, task.ID, attempts, final, code, now)
		}
		return repo.RequeueTask(ctx, task.ID, attempts, msg, code, now)
	})
	if err != nil {
		s.log.Error().Str("task", task.ID).Err(err).Msg("settling failed task failed")
	}
}
