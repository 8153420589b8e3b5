// Package http exposes scheduler diagnostics
package http

import (
	"net/http"
	"sort"
	"time"

	"shillwatch/internal/modkit/httpkit"
	"shillwatch/internal/platform/sched"
)

type handlers struct {
	sched *sched.Scheduler
}

// Register mounts the scheduler routes
func Register(r httpkit.Router, s *sched.Scheduler) {
	h := &handlers{sched: s}

	httpkit.Get(r, "/status", h.status)
}

// JobStatusResponse describes one registered job
type JobStatusResponse struct {
	Name     string `json:"name"     example:"transfers.ingest"`
	Running  bool   `json:"running"  example:"true"`
	Interval string `json:"interval" example:"1m0s"`
	LastRun  string `json:"last_run,omitempty" example:"2026-08-24T10:00:00Z"`
}

// StatusResponse lists all registered jobs
type StatusResponse struct {
	Jobs []JobStatusResponse `json:"jobs"`
}

// swagger:route GET /sched/status Sched schedStatus
// @Summary Scheduler job status
// @Tags Sched
// @Produce json
// @Success 200 type StatusResponse ok
// @Router /sched/status [get]
func (h *handlers) status(_ *http.Request) (any, error) {
	st := h.sched.Status()

	out := StatusResponse{Jobs: make([]JobStatusResponse, 0, len(st))}
	for name, js := range st {
		j := JobStatusResponse{
			Name:     name,
			Running:  js.Running,
			Interval: js.Interval.String(),
		}
		if js.LastRun != nil {
			j.LastRun = js.LastRun.UTC().Format(time.RFC3339)
		}
		out.Jobs = append(out.Jobs, j)
	}
	sort.Slice(out.Jobs, func(i, k int) bool { return out.Jobs[i].Name < out.Jobs[k].Name })
	return out, nil
}
