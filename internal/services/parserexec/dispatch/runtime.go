// Package dispatch executes one task against one slot through a
// kind-specific runtime adapter and normalizes engine-native results
// into the product shape
package dispatch

import (
	"context"
	"fmt"
	"net/url"

	"shillwatch/internal/services/parserexec/domain"
)

// runtime is the capability set shared by all adapters
type runtime interface {
	dispatch(ctx context.Context, task domain.Task) (engineResult, error)
	healthCheck(ctx context.Context) error
}

// engineSummary carries the engine-native run summary; all fields are
// optional and resolved first-non-nil during normalization
type engineSummary struct {
	FetchedPosts *int     `json:"fetchedPosts"`
	FinalRisk    *float64 `json:"finalRisk"`
	RiskMax      *float64 `json:"riskMax"`
	DurationMs   *int64   `json:"durationMs"`
	Aborted      any      `json:"aborted"`
	AbortReason  string   `json:"abortReason"`
}

// engineResult is the raw adapter answer before normalization
type engineResult struct {
	Tweets  []domain.Post  `json:"tweets"`
	Summary *engineSummary `json:"engineSummary"`
}

// endpointFor maps a task onto its runtime endpoint path.
// The target segment is path-escaped; payload values travel separately
// as query parameters
func endpointFor(task domain.Task) (string, error) {
	target := url.PathEscape(task.Payload.Target())
	switch task.Type {
	case domain.TaskSearch:
		return "/search/" + target, nil
	case domain.TaskAccountTweets:
		return "/tweets/" + target, nil
	case domain.TaskAccountFollowers:
		return "/account/" + target + "/followers", nil
	default:
		return "", fmt.Errorf("no endpoint for task type %q", task.Type)
	}
}
