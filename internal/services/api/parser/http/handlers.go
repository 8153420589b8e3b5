// Package http provides http transport for the parser execution core
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"shillwatch/internal/modkit/httpkit"
	perr "shillwatch/internal/platform/errors"
	"shillwatch/internal/services/api/parser/domain"
	execdom "shillwatch/internal/services/parserexec/domain"
)

// Register mounts parser endpoints on the given router
func Register(r httpkit.Router, exec execdom.ExecutorPort) {
	h := &handlers{exec: exec}

	// synchronous execution
	httpkit.PostJSON[domain.SearchInput](r, "/search", h.search)
	httpkit.PostJSON[domain.AccountInput](r, "/account/tweets", h.accountTweets)
	httpkit.PostJSON[domain.AccountInput](r, "/account/followers", h.accountFollowers)

	// durable queue
	httpkit.PostJSON[domain.EnqueueInput](r, "/tasks", h.enqueue)
	httpkit.Get(r, "/tasks/{id}", h.taskStatus)

	// worker lifecycle and slot accounting
	httpkit.Post(r, "/worker/start", h.workerStart)
	httpkit.Post(r, "/worker/stop", h.workerStop)
	httpkit.Post(r, "/slots/reset", h.slotsReset)

	// diagnostics
	httpkit.Get(r, "/status", h.status)
	httpkit.Get(r, "/capacity", h.capacity)
}

type handlers struct{ exec execdom.ExecutorPort }

// swagger:route POST /parser/search Parser parserSearch
// @Summary Run a post search on the best available slot
// @Tags Parser
// @Accept json
// @Produce json
// @Param payload body domain.SearchInput true "Query"
// @Success 200 {object} execdom.ExecutionResult "ok"
// @Router /parser/search [post]
func (h *handlers) search(r *stdhttp.Request, in domain.SearchInput) (any, error) {
	return h.exec.RunSearchSync(r.Context(), in.Query, in.MaxResults), nil
}

// swagger:route POST /parser/account/tweets Parser parserAccountTweets
// @Summary Fetch an account's recent posts
// @Tags Parser
// @Accept json
// @Produce json
// @Param payload body domain.AccountInput true "Target account"
// @Success 200 {object} execdom.ExecutionResult "ok"
// @Router /parser/account/tweets [post]
func (h *handlers) accountTweets(r *stdhttp.Request, in domain.AccountInput) (any, error) {
	return h.exec.RunAccountTweetsSync(r.Context(), in.Username, in.MaxResults), nil
}

// swagger:route POST /parser/account/followers Parser parserAccountFollowers
// @Summary Fetch an account's followers
// @Tags Parser
// @Accept json
// @Produce json
// @Param payload body domain.AccountInput true "Target account"
// @Success 200 {object} execdom.ExecutionResult "ok"
// @Router /parser/account/followers [post]
func (h *handlers) accountFollowers(r *stdhttp.Request, in domain.AccountInput) (any, error) {
	return h.exec.RunAccountFollowersSync(r.Context(), in.Username, in.MaxResults), nil
}

// swagger:route POST /parser/tasks Parser parserEnqueue
// @Summary Enqueue a task for asynchronous execution
// @Tags Parser
// @Accept json
// @Produce json
// @Param payload body domain.EnqueueInput true "Task"
// @Success 201 {object} domain.EnqueueResponse "created"
// @Router /parser/tasks [post]
func (h *handlers) enqueue(r *stdhttp.Request, in domain.EnqueueInput) (any, error) {
	payload, err := payloadFrom(in)
	if err != nil {
		return nil, err
	}
	id, err := h.exec.Enqueue(r.Context(), payload, execdom.EnqueueOpts{
		Priority:    priorityFrom(in.Priority),
		MaxAttempts: in.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return httpkit.Created(domain.EnqueueResponse{TaskID: id}), nil
}

// swagger:route GET /parser/tasks/{id} Parser parserTaskStatus
// @Summary Look a task up by id
// @Tags Parser
// @Produce json
// @Param id path string true "Task id"
// @Success 200 {object} execdom.TaskStatusView "ok"
// @Router /parser/tasks/{id} [get]
func (h *handlers) taskStatus(r *stdhttp.Request) (any, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, perr.InvalidArgf("task id is required")
	}
	view, err := h.exec.TaskStatus(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !view.Found {
		return nil, perr.NotFoundf("task %s not found", id)
	}
	return view, nil
}

// swagger:route POST /parser/worker/start Parser parserWorkerStart
// @Summary Start the queue worker
// @Tags Parser
// @Produce json
// @Success 200 {object} domain.WorkerResponse "ok"
// @Router /parser/worker/start [post]
func (h *handlers) workerStart(r *stdhttp.Request) (any, error) {
	h.exec.StartWorker(r.Context())
	st, err := h.exec.Status(r.Context())
	if err != nil {
		return nil, err
	}
	return domain.WorkerResponse{Worker: st.Worker}, nil
}

// swagger:route POST /parser/worker/stop Parser parserWorkerStop
// @Summary Stop the queue worker, draining the in-flight task
// @Tags Parser
// @Produce json
// @Success 200 {object} domain.WorkerResponse "ok"
// @Router /parser/worker/stop [post]
func (h *handlers) workerStop(r *stdhttp.Request) (any, error) {
	h.exec.StopWorker(r.Context())
	st, err := h.exec.Status(r.Context())
	if err != nil {
		return nil, err
	}
	return domain.WorkerResponse{Worker: st.Worker}, nil
}

// swagger:route POST /parser/slots/reset Parser parserSlotsReset
// @Summary Zero usage counters and cooldowns on every slot
// @Tags Parser
// @Produce json
// @Success 200 {object} execdom.CapacityInfo "ok"
// @Router /parser/slots/reset [post]
func (h *handlers) slotsReset(r *stdhttp.Request) (any, error) {
	if err := h.exec.ResetCounters(r.Context()); err != nil {
		return nil, err
	}
	return h.exec.Capacity(r.Context())
}

// swagger:route GET /parser/status Parser parserStatus
// @Summary Executor diagnostics
// @Tags Parser
// @Produce json
// @Success 200 {object} execdom.StatusView "ok"
// @Router /parser/status [get]
func (h *handlers) status(r *stdhttp.Request) (any, error) {
	return h.exec.Status(r.Context())
}

// swagger:route GET /parser/capacity Parser parserCapacity
// @Summary Registry-wide quota headroom
// @Tags Parser
// @Produce json
// @Success 200 {object} execdom.CapacityInfo "ok"
// @Router /parser/capacity [get]
func (h *handlers) capacity(r *stdhttp.Request) (any, error) {
	return h.exec.Capacity(r.Context())
}

func payloadFrom(in domain.EnqueueInput) (execdom.Payload, error) {
	switch execdom.TaskType(in.Type) {
	case execdom.TaskSearch:
		if in.Query == "" {
			return nil, perr.InvalidArgf("query is required for search tasks")
		}
		return execdom.SearchPayload{Query: in.Query, MaxResults: in.MaxResults}, nil
	case execdom.TaskAccountTweets:
		if in.Username == "" {
			return nil, perr.InvalidArgf("username is required for account_tweets tasks")
		}
		return execdom.AccountTweetsPayload{Username: in.Username, MaxResults: in.MaxResults}, nil
	case execdom.TaskAccountFollowers:
		if in.Username == "" {
			return nil, perr.InvalidArgf("username is required for account_followers tasks")
		}
		return execdom.AccountFollowersPayload{Username: in.Username, MaxResults: in.MaxResults}, nil
	default:
		return nil, perr.InvalidArgf("unknown task type %q", in.Type)
	}
}

func priorityFrom(s string) execdom.Priority {
	switch s {
	case "high":
		return execdom.PriorityHigh
	case "low":
		return execdom.PriorityLow
	default:
		return execdom.PriorityNormal
	}
}
