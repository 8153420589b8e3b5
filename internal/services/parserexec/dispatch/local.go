package dispatch

import (
	"context"
	"net/http"

	"shillwatch/internal/services/parserexec/domain"
)

// localRuntime calls the co-located parser process. The system-scoped
// session credential travels out of band in a header; it is injected at
// construction, never stored with the slot
type localRuntime struct {
	base      string
	userAgent string
	session   func() string
	client    *http.Client
}

func newLocalRuntime(baseURL, userAgent string, session func() string, client *http.Client) *localRuntime {
	return &localRuntime{base: baseURL, userAgent: userAgent, session: session, client: client}
}

func (l *localRuntime) dispatch(ctx context.Context, task domain.Task) (engineResult, error) {
	ep, err := endpointFor(task)
	if err != nil {
		return engineResult{}, err
	}
	var hdr map[string]string
	if l.session != nil {
		if tok := l.session(); tok != "" {
			hdr = map[string]string{"X-Session-Token": tok}
		}
	}
	return doEngineGet(ctx, l.client, l.base+ep, task, l.userAgent, hdr)
}

func (l *localRuntime) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return httpStatusError{status: resp.StatusCode}
	}
	return nil
}
