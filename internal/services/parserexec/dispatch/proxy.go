package dispatch

import (
	"context"
	"net/http"
	"net/url"

	"shillwatch/internal/services/parserexec/domain"
)

// proxyRuntime tunnels the engine request through the slot's proxy URL
// toward the local parser target. An unreachable target surfaces as
// proxy_not_implemented at the dispatcher level
type proxyRuntime struct {
	target    string // underlying parser base URL
	userAgent string
	client    *http.Client
}

func newProxyRuntime(proxyURL, target, userAgent string, timeoutClient *http.Client) (*proxyRuntime, error) {
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}

	// clone the shared client but route through the proxy
	c := *timeoutClient
	var base http.RoundTripper = http.DefaultTransport
	if c.Transport != nil {
		base = c.Transport
	}
	if t, ok := base.(*http.Transport); ok {
		tc := t.Clone()
		tc.Proxy = http.ProxyURL(pu)
		c.Transport = tc
	} else {
		tc := http.DefaultTransport.(*http.Transport).Clone()
		tc.Proxy = http.ProxyURL(pu)
		c.Transport = tc
	}

	return &proxyRuntime{target: target, userAgent: userAgent, client: &c}, nil
}

func (p *proxyRuntime) dispatch(ctx context.Context, task domain.Task) (engineResult, error) {
	ep, err := endpointFor(task)
	if err != nil {
		return engineResult{}, err
	}
	return doEngineGet(ctx, p.client, p.target+ep, task, p.userAgent, nil)
}

func (p *proxyRuntime) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return httpStatusError{status: resp.StatusCode}
	}
	return nil
}
