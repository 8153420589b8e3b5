// Package domain defines the parser execution core's entities and ports
package domain

import (
	"net/url"
	"strconv"
	"time"

	"shillwatch/internal/platform/clock"
)

// SlotKind discriminates the runtime adapter used for a slot
type SlotKind string

// Supported slot kinds
const (
	KindRemoteWorker SlotKind = "remote_worker"
	KindProxy        SlotKind = "proxy"
	KindLocalParser  SlotKind = "local_parser"
)

// Health is the coarse slot health state
type Health string

// Health states; Error makes a slot ineligible
const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthError    Health = "error"
	HealthUnknown  Health = "unknown"
)

// Slot is one outbound execution lane with its own quota, credentials
// and health. The four mutable fields (UsedInWindow, WindowStart,
// Health, CooldownUntil) are written back in a single update per dispatch
type Slot struct {
	ID            string
	Label         string
	Kind          SlotKind
	BaseURL       string
	ProxyURL      string
	Enabled       bool
	AccountID     string
	LimitPerHour  int
	UsedInWindow  int
	WindowStart   time.Time
	CooldownUntil time.Time // zero means no cooldown
	Health        Health

	// ConsecutiveTimeouts drives the timeout cooldown escalation;
	// cleared by any successful dispatch
	ConsecutiveTimeouts int

	UpdatedAt time.Time
}

// Remaining returns the quota left in the current hourly bucket
func (s Slot) Remaining() int {
	r := s.LimitPerHour - s.UsedInWindow
	if r < 0 {
		return 0
	}
	return r
}

// WindowRolled reports whether the hourly bucket has expired at now
func (s Slot) WindowRolled(now time.Time) bool {
	return clock.HourElapsed(now, s.WindowStart)
}

// InCooldown reports whether the slot is cooling down at now
func (s Slot) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && s.CooldownUntil.After(now)
}

// Eligible applies the full eligibility invariant at now.
// Callers must apply the hourly reset before asking
func (s Slot) Eligible(now time.Time) bool {
	return s.Enabled &&
		!s.InCooldown(now) &&
		s.UsedInWindow < s.LimitPerHour &&
		s.Health != HealthError
}

// Account is a credential identity usable by slots
// At least one enabled account must exist for work to be accepted
type Account struct {
	ID      string
	Label   string
	Enabled bool
}

// TaskType enumerates the dispatchable work kinds
type TaskType string

// Supported task types
const (
	TaskSearch           TaskType = "search"
	TaskAccountTweets    TaskType = "account_tweets"
	TaskAccountFollowers TaskType = "account_followers"
)

// Priority orders queued tasks; higher dequeues first
type Priority int

// Priorities; zero value is Normal-adjacent Low to keep enqueue cheap
const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// TaskStatus is the durable task lifecycle state
type TaskStatus string

// Lifecycle: queued -> running -> (done | failed), with the retry
// re-queue running -> queued while attempts < maxAttempts
const (
	StatusQueued  TaskStatus = "queued"
	StatusRunning TaskStatus = "running"
	StatusDone    TaskStatus = "done"
	StatusFailed  TaskStatus = "failed"
)

// Payload is the tagged per-type task payload. The untyped map form is
// allowed at the queue boundary only; in-memory code pattern-matches
// on the concrete variants
type Payload interface {
	TaskType() TaskType

	// Target is the path segment for the runtime endpoint
	// (search query or username)
	Target() string

	// Values are forwarded verbatim as query parameters
	Values() url.Values

	// Map is the queue-boundary form persisted with the task
	Map() map[string]any
}

// SearchPayload asks a runtime to run a post search
type SearchPayload struct {
	Query      string
	MaxResults int
}

// TaskType implements Payload
func (p SearchPayload) TaskType() TaskType { return TaskSearch }

// Target implements Payload
func (p SearchPayload) Target() string { return p.Query }

// Values implements Payload
func (p SearchPayload) Values() url.Values {
	v := url.Values{}
	v.Set("query", p.Query)
	if p.MaxResults > 0 {
		v.Set("max_results", strconv.Itoa(p.MaxResults))
	}
	return v
}

// Map implements Payload
func (p SearchPayload) Map() map[string]any {
	return map[string]any{"query": p.Query, "max_results": p.MaxResults}
}

// AccountTweetsPayload asks a runtime to fetch an account's recent posts
type AccountTweetsPayload struct {
	Username   string
	MaxResults int
}

// TaskType implements Payload
func (p AccountTweetsPayload) TaskType() TaskType { return TaskAccountTweets }

// Target implements Payload
func (p AccountTweetsPayload) Target() string { return p.Username }

// Values implements Payload
func (p AccountTweetsPayload) Values() url.Values {
	v := url.Values{}
	v.Set("username", p.Username)
	if p.MaxResults > 0 {
		v.Set("max_results", strconv.Itoa(p.MaxResults))
	}
	return v
}

// Map implements Payload
func (p AccountTweetsPayload) Map() map[string]any {
	return map[string]any{"username": p.Username, "max_results": p.MaxResults}
}

// AccountFollowersPayload asks a runtime to fetch an account's followers
type AccountFollowersPayload struct {
	Username   string
	MaxResults int
}

// TaskType implements Payload
func (p AccountFollowersPayload) TaskType() TaskType { return TaskAccountFollowers }

// Target implements Payload
func (p AccountFollowersPayload) Target() string { return p.Username }

// Values implements Payload
func (p AccountFollowersPayload) Values() url.Values {
	v := url.Values{}
	v.Set("username", p.Username)
	if p.MaxResults > 0 {
		v.Set("max_results", strconv.Itoa(p.MaxResults))
	}
	return v
}

// Map implements Payload
func (p AccountFollowersPayload) Map() map[string]any {
	return map[string]any{"username": p.Username, "max_results": p.MaxResults}
}

// PayloadFromMap rebuilds the typed payload from its queue-boundary form
func PayloadFromMap(t TaskType, m map[string]any) (Payload, error) {
	maxResults := intField(m, "max_results")
	switch t {
	case TaskSearch:
		q := strField(m, "query")
		if q == "" {
			return nil, ErrBadPayload
		}
		return SearchPayload{Query: q, MaxResults: maxResults}, nil
	case TaskAccountTweets:
		u := strField(m, "username")
		if u == "" {
			return nil, ErrBadPayload
		}
		return AccountTweetsPayload{Username: u, MaxResults: maxResults}, nil
	case TaskAccountFollowers:
		u := strField(m, "username")
		if u == "" {
			return nil, ErrBadPayload
		}
		return AccountFollowersPayload{Username: u, MaxResults: maxResults}, nil
	default:
		return nil, ErrBadPayload
	}
}

func strField(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, k string) int {
	switch v := m[k].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Task is one unit of dispatchable work owned by the durable queue
type Task struct {
	ID          string
	Type        TaskType
	Payload     Payload
	Priority    Priority
	Attempts    int
	MaxAttempts int
	Status      TaskStatus
	AccountID   string
	InstanceID  string // slot id, assigned at dispatch time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *Result
	Error       string
	ErrorCode   Code
}

// ResultStatus classifies a normalized engine result
type ResultStatus string

// Result statuses; partial means aborted mid-run with some posts fetched
const (
	ResultOK      ResultStatus = "ok"
	ResultPartial ResultStatus = "partial"
	ResultAborted ResultStatus = "aborted"
)

// Result is the product-facing shape runtime-native summaries are
// normalized into
type Result struct {
	Status      ResultStatus `json:"status"`
	Fetched     int          `json:"fetched"`
	RiskScore   float64      `json:"riskScore"`
	DurationMs  int64        `json:"durationMs"`
	Aborted     bool         `json:"aborted"`
	AbortReason string       `json:"abortReason,omitempty"`

	// Posts carries the raw engine items for collaborator persistence
	Posts []Post `json:"posts,omitempty"`
}

// Post is one fetched social post in engine-native form
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Meta identifies who executed a successful dispatch
type Meta struct {
	AccountID  string `json:"accountId"`
	InstanceID string `json:"instanceId"`
	TaskID     string `json:"taskId"`
	DurationMs int64  `json:"durationMs"`
}

// ExecutionResult is the value returned by the dispatcher and executor
type ExecutionResult struct {
	OK    bool    `json:"ok"`
	Data  *Result `json:"data,omitempty"`
	Error string  `json:"error,omitempty"`
	Code  Code    `json:"errorCode,omitempty"`
	Meta  *Meta   `json:"meta,omitempty"`
}

// Failure builds a failed ExecutionResult
func Failure(code Code, msg string) ExecutionResult {
	return ExecutionResult{OK: false, Error: msg, Code: code}
}
