package domain

import (
	"context"
	"time"
)

// SlotWriteBack batches the four mutable slot fields persisted after a
// dispatch, plus the timeout streak backing the cooldown escalation
type SlotWriteBack struct {
	SlotID              string
	UsedInWindow        int
	WindowStart         time.Time
	Health              Health
	CooldownUntil       time.Time // zero clears the cooldown
	ConsecutiveTimeouts int
}

// StorageRepo is the persistence surface of the execution core.
// Slots and accounts back the registry; tasks back the durable queue
type StorageRepo interface {
	// ListEnabledSlots returns all slots with enabled = true
	ListEnabledSlots(ctx context.Context) ([]Slot, error)

	// ListActiveAccounts returns all accounts with status active
	ListActiveAccounts(ctx context.Context) ([]Account, error)

	// WriteBackSlot persists the mutable slot fields in one update
	WriteBackSlot(ctx context.Context, wb SlotWriteBack) error

	// ResetAllCounters zeroes usage, advances windows and clears
	// cooldowns for every slot
	ResetAllCounters(ctx context.Context, now time.Time) error

	// EnqueueTask inserts a queued task record
	EnqueueTask(ctx context.Context, t Task) error

	// LeaseNextTask atomically transitions the best queued candidate to
	// running and returns it; ok is false when the queue is empty
	LeaseNextTask(ctx context.Context, now time.Time) (t Task, ok bool, err error)

	// MarkTaskRunningSlot stamps the slot chosen after selection
	MarkTaskRunningSlot(ctx context.Context, taskID, slotID string, now time.Time) error

	// CompleteTask marks a task done and stores its result
	CompleteTask(ctx context.Context, taskID string, res Result, now time.Time) error

	// RequeueTask reverts a failed attempt to queued with startedAt
	// cleared and the attempt counted
	RequeueTask(ctx context.Context, taskID string, attempts int, errMsg string, code Code, now time.Time) error

	// FailTask marks a task terminally failed
	FailTask(ctx context.Context, taskID string, attempts int, errMsg string, code Code, now time.Time) error

	// GetTask returns a task by id; ok is false when missing
	GetTask(ctx context.Context, taskID string) (t Task, ok bool, err error)
}

// ResultsWriter persists fetched posts to the collaborator store
// (upserts by natural key; schema is not this core's concern)
type ResultsWriter interface {
	WritePosts(ctx context.Context, taskID string, posts []Post) error
}

// DispatcherPort executes one task against one slot
type DispatcherPort interface {
	Dispatch(ctx context.Context, slot Slot, task Task) ExecutionResult
}

// EnqueueOpts tunes async execution
type EnqueueOpts struct {
	Priority    Priority
	MaxAttempts int
}

// TaskStatusView is the task lookup answer; Result is present only
// when the task is done
type TaskStatusView struct {
	Found  bool    `json:"found"`
	Task   *Task   `json:"task,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// CapacityInfo summarizes registry-wide quota headroom
type CapacityInfo struct {
	TotalCapacity     int `json:"totalCapacity"`
	UsedThisHour      int `json:"usedThisHour"`
	AvailableThisHour int `json:"availableThisHour"`
	ActiveInstances   int `json:"activeInstances"`
	InCooldown        int `json:"inCooldown"`
	RateLimited       int `json:"rateLimited"`
}

// StatusView is the executor diagnostic surface
type StatusView struct {
	Worker         string       `json:"worker"`
	Capacity       CapacityInfo `json:"capacity"`
	LastSync       *time.Time   `json:"lastSync,omitempty"`
	AccountsCount  int          `json:"accountsCount"`
	InstancesCount int          `json:"instancesCount"`
	Runtime        string       `json:"runtime"`
}

// ExecutorPort is the public surface of the execution core
type ExecutorPort interface {
	RunSearchSync(ctx context.Context, query string, maxResults int) ExecutionResult
	RunAccountTweetsSync(ctx context.Context, username string, maxResults int) ExecutionResult
	RunAccountFollowersSync(ctx context.Context, username string, maxResults int) ExecutionResult

	Enqueue(ctx context.Context, p Payload, opts EnqueueOpts) (taskID string, err error)
	TaskStatus(ctx context.Context, taskID string) (TaskStatusView, error)

	StartWorker(ctx context.Context)
	StopWorker(ctx context.Context)
	ResetCounters(ctx context.Context) error

	Status(ctx context.Context) (StatusView, error)
	Capacity(ctx context.Context) (CapacityInfo, error)
}
