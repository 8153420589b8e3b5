package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"shillwatch/internal/services/parserexec/domain"
)

// httpStatusError marks a non-2xx answer so the dispatcher can map
// 429 onto the rate-limit code
type httpStatusError struct{ status int }

func (e httpStatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.status) }

// remoteRuntime drives a remote worker over plain HTTP GET
type remoteRuntime struct {
	base      string
	userAgent string
	client    *http.Client
}

func newRemoteRuntime(baseURL, userAgent string, client *http.Client) *remoteRuntime {
	return &remoteRuntime{base: baseURL, userAgent: userAgent, client: client}
}

func (r *remoteRuntime) dispatch(ctx context.Context, task domain.Task) (engineResult, error) {
	ep, err := endpointFor(task)
	if err != nil {
		return engineResult{}, err
	}
	return doEngineGet(ctx, r.client, r.base+ep, task, r.userAgent, nil)
}

func (r *remoteRuntime) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return httpStatusError{status: resp.StatusCode}
	}
	return nil
}

// doEngineGet issues the canonical engine request: GET with the payload
// forwarded verbatim as query parameters and the task id in X-Task-ID
func doEngineGet(
	ctx context.Context, client *http.Client, rawURL string, task domain.Task,
	userAgent string, extraHeaders map[string]string,
) (engineResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return engineResult{}, err
	}
	u.RawQuery = task.Payload.Values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return engineResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Task-ID", task.ID)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return engineResult{}, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return engineResult{}, httpStatusError{status: resp.StatusCode}
	}

	var out engineResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return engineResult{}, fmt.Errorf("decode engine response: %w", err)
	}
	return out, nil
}

// drainAndClose lets the transport reuse the connection
func drainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	_ = rc.Close()
}
