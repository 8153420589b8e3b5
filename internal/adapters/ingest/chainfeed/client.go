// Package chainfeed provides a resilient client for the on-chain transfer feed
package chainfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	perr "shillwatch/internal/platform/errors"
	"shillwatch/internal/platform/logger"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUA        = "shillwatch-ingest"
	defaultMaxRetry  = 5
	defaultRetryBase = 500 * time.Millisecond
	defaultPageLimit = 500
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// APIKey is sent as X-API-Key when present
	// Empty means anonymous which is very low quota so not recommended
	APIKey string

	// PageLimit caps transfers per page request
	PageLimit int

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Transfer is one token movement as the feed reports it
type Transfer struct {
	TxHash    string    `json:"txHash"`
	Chain     string    `json:"chain"`
	TokenAddr string    `json:"tokenAddr"`
	Symbol    string    `json:"symbol"`
	FromAddr  string    `json:"from"`
	ToAddr    string    `json:"to"`
	Amount    float64   `json:"amount"`
	AmountUSD float64   `json:"amountUsd"`
	BlockTime time.Time `json:"blockTime"`
}

// Batch is one page of the feed plus the cursor to resume from
type Batch struct {
	Transfers  []Transfer `json:"transfers"`
	NextCursor string     `json:"nextCursor"`
}

// Client is a minimal transfer feed client with retries and backoff
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PageLimit <= 0 {
		o.PageLimit = defaultPageLimit
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("chainfeed"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Transfers fetches one page of transfers starting after cursor
// An empty cursor means the beginning of the feed
func (c *Client) Transfers(ctx context.Context, cursor string) (Batch, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("limit", strconv.Itoa(c.opts.PageLimit))

	resp, err := c.do(ctx, http.MethodGet, "/transfers?"+q.Encode())
	if err != nil {
		return Batch{}, err
	}
	defer func() { _ = drainAndClose(resp.Body) }()

	var b Batch
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return Batch{}, perr.Wrapf(err, perr.ErrorCodeUnknown, "chainfeed decode failed")
	}
	return b, nil
}

// do issues a request with auth headers, retries, and rate limit handling
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	u := c.opts.BaseURL + path
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "chainfeed new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		if c.opts.APIKey != "" {
			req.Header.Set("X-API-Key", c.opts.APIKey)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "chainfeed do failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("chainfeed transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("chainfeed http response")

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "chainfeed rate limited")
			}
			c.log.Warn().Dur("sleep", wait).Msg("chainfeed rate limited backing off")
			c.sleep(wait)
			attempts++
			continue
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Unavailablef("chainfeed transient server error")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("chainfeed transient error retrying")
			c.sleep(back)
			attempts++
			continue
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnknown, "chainfeed unexpected status %d body %s", resp.StatusCode, string(body))
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	// simple exponential with cap
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	cap := int64(30 * time.Second / time.Millisecond)
	if ms > cap {
		ms = cap
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func retryAfter(h http.Header) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}
