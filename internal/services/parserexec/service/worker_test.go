package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"shillwatch/internal/services/parserexec/domain"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}

func TestWorker_ProcessesEnqueuedTask(t *testing.T) {
	t.Parallel()

	h := newHarness(Config{PollEvery: 10 * time.Millisecond})
	h.seedAccount("acct-1")
	h.seedSlot(domain.Slot{ID: "s1", LimitPerHour: 10, AccountID: "acct-1"})
	h.disp.fn = func(domain.Slot, domain.Task) domain.ExecutionResult { return okResult(3) }

	h.svc.StartWorker(context.Background())
	defer h.svc.StopWorker(context.Background())

	id, err := h.svc.Enqueue(context.Background(), domain.SearchPayload{Query: "btc", MaxResults: 10}, domain.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.repo.task(t, id).Status == domain.StatusDone
	})

	task := h.repo.task(t, id)
	if task.InstanceID != "s1" {
		t.Errorf("instance = %q want s1", task.InstanceID)
	}
	if task.Result == nil || task.Result.Fetched != 3 {
		t.Errorf("result = %+v", task.Result)
	}

	h.res.mu.Lock()
	got := len(h.res.posts[id])
	h.res.mu.Unlock()
	if got != 3 {
		t.Errorf("persisted posts = %d want 3", got)
	}

	slot, _ := h.svc.deps.Registry.Slot("s1")
	if slot.UsedInWindow != 1 {
		t.Errorf("slot used = %d want 1", slot.UsedInWindow)
	}
}

func TestWorker_RetriesThenFails(t *testing.T) {
	t.Parallel()

	h := newHarness(Config{PollEvery: 10 * time.Millisecond})
	h.seedAccount("acct-1")
	h.seedSlot(domain.Slot{ID: "s1", LimitPerHour: 10})
	h.disp.fn = func(domain.Slot, domain.Task) domain.ExecutionResult {
		return domain.Failure(domain.CodeRemoteError, "upstream exploded")
	}

	h.svc.StartWorker(context.Background())
	defer h.svc.StopWorker(context.Background())

	id, err := h.svc.Enqueue(context.Background(), domain.SearchPayload{Query: "btc"}, domain.EnqueueOpts{MaxAttempts: 2})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.repo.task(t, id).Status == domain.StatusFailed
	})

	task := h.repo.task(t, id)
	if task.Attempts != 2 {
		t.Errorf("attempts = %d want 2", task.Attempts)
	}
	// the terminal code is the last dispatch outcome
	if task.ErrorCode != domain.CodeRemoteError {
		t.Errorf("error code = %s want %s", task.ErrorCode, domain.CodeRemoteError)
	}
	if !strings.Contains(task.Error, "gave up after 2 attempts") {
		t.Errorf("error = %q", task.Error)
	}
}

func TestWorker_PriorityOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(Config{PollEvery: 10 * time.Millisecond})
	h.seedAccount("acct-1")
	h.seedSlot(domain.Slot{ID: "s1", LimitPerHour: 10})

	// seeded straight into the queue so both tasks are pending before
	// the worker takes its first lease
	lowID, highID := "task-low", "task-high"
	h.seedQueuedTask(t, domain.Task{
		ID:       lowID,
		Payload:  domain.SearchPayload{Query: "low"},
		Priority: domain.PriorityLow,
	})
	h.seedQueuedTask(t, domain.Task{
		ID:       highID,
		Payload:  domain.SearchPayload{Query: "high"},
		Priority: domain.PriorityHigh,
	})

	h.svc.StartWorker(context.Background())
	defer h.svc.StopWorker(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		return h.repo.task(t, lowID).Status == domain.StatusDone &&
			h.repo.task(t, highID).Status == domain.StatusDone
	})

	h.disp.mu.Lock()
	first := h.disp.calls[0].ID
	h.disp.mu.Unlock()
	if first != highID {
		t.Errorf("first dispatched = %s want the high priority task", first)
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(Config{PollEvery: 10 * time.Millisecond})
	if got := h.svc.WorkerState(); got != WorkerStopped {
		t.Fatalf("initial state = %s", got)
	}

	h.svc.StartWorker(context.Background())
	if got := h.svc.WorkerState(); got != WorkerRunning {
		t.Fatalf("state after start = %s", got)
	}

	// starting again is a no-op
	h.svc.StartWorker(context.Background())
	if got := h.svc.WorkerState(); got != WorkerRunning {
		t.Fatalf("state after double start = %s", got)
	}

	h.svc.StopWorker(context.Background())
	if got := h.svc.WorkerState(); got != WorkerStopped {
		t.Fatalf("state after stop = %s", got)
	}

	// stopping again is a no-op
	h.svc.StopWorker(context.Background())
	if got := h.svc.WorkerState(); got != WorkerStopped {
		t.Fatalf("state after double stop = %s", got)
	}
}

func TestWorker_NoAccountFailsTask(t *testing.T) {
	t.Parallel()

	h := newHarness(Config{PollEvery: 10 * time.Millisecond})
	h.seedSlot(domain.Slot{ID: "s1", LimitPerHour: 10})

	// a task queued before the last account was disabled
	id := "task-orphaned"
	h.seedQueuedTask(t, domain.Task{
		ID:          id,
		Payload:     domain.SearchPayload{Query: "btc"},
		MaxAttempts: 1,
	})

	h.svc.StartWorker(context.Background())
	defer h.svc.StopWorker(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		return h.repo.task(t, id).Status == domain.StatusFailed
	})
	task := h.repo.task(t, id)
	if task.ErrorCode != domain.CodeNoActiveAccount {
		t.Errorf("error code = %s want %s", task.ErrorCode, domain.CodeNoActiveAccount)
	}
	if h.disp.callCount() != 0 {
		t.Errorf("dispatched without an account")
	}
}
