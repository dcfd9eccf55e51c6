// Package registry fetches entity snapshot markup from the public carrier
// registry.
package registry

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/resilience"
)

// maxBodyBytes caps a snapshot page read.
const maxBodyBytes = 4 << 20

// ErrRecordNotFound means the registry has no active record for the
// identifier. It is permanent and never retried.
var ErrRecordNotFound = eris.New("registry: record not found")

// Fetcher returns the raw snapshot markup for one identifier.
type Fetcher interface {
	Fetch(ctx context.Context, dot string) (string, error)
}

// Pinger checks that the registry is reachable at all.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	Breaker        *resilience.CircuitBreaker
	HTTPClient     *http.Client
}

// OptionsFromConfig maps the registry config section onto Options.
func OptionsFromConfig(cfg config.RegistryConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		UserAgent:      cfg.UserAgent,
		Timeout:        time.Duration(cfg.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
		Burst:          cfg.Burst,
	}
}

// Client performs one HTTP attempt per Fetch. Retries belong to the caller;
// the client only classifies failures as transient or permanent.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	limiter *AdaptiveLimiter
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("registry: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "carrier-sync/1.0"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:    base,
		opts:    opts,
		http:    hc,
		limiter: NewAdaptiveLimiter(opts.RequestsPerSec, opts.Burst),
		breaker: opts.Breaker,
		log:     zap.L().With(zap.String("component", "registry")),
	}, nil
}

// SnapshotURL returns the snapshot query URL for dot.
func (c *Client) SnapshotURL(dot string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/query.asp"
	q := url.Values{}
	q.Set("searchtype", "ANY")
	q.Set("query_type", "queryCarrierSnapshot")
	q.Set("query_param", "USDOT")
	q.Set("query_string", dot)
	u.RawQuery = q.Encode()
	return u.String()
}

// Limiter exposes the client's rate limiter.
func (c *Client) Limiter() *AdaptiveLimiter { return c.limiter }

// Fetch returns the decoded snapshot markup for dot.
func (c *Client) Fetch(ctx context.Context, dot string) (string, error) {
	if c.breaker == nil {
		return c.fetch(ctx, dot)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return c.fetch(ctx, dot)
	})
}

func (c *Client) fetch(ctx context.Context, dot string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "registry: rate limiter")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	target := c.SnapshotURL(dot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrapf(err, "registry: build request for %s", dot)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", resilience.NewTransientError(eris.Wrapf(ctx.Err(), "registry: fetch %s", dot), 0)
		}
		wrapped := eris.Wrapf(err, "registry: fetch %s", dot)
		if resilience.IsTransient(err) {
			return "", resilience.NewTransientError(wrapped, 0)
		}
		return "", wrapped
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrapf(err, "registry: read body for %s", dot), 0)
	}

	c.log.Debug("registry: fetched snapshot",
		zap.String("dot", dot),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.OnRateLimit()
		return "", resilience.NewTransientError(eris.Errorf("registry: rate limited fetching %s", dot), resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return "", eris.Wrapf(ErrRecordNotFound, "dot %s", dot)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(eris.Errorf("registry: http %d fetching %s", resp.StatusCode, dot), resp.StatusCode)
	}

	switch DetectPage(resp, body) {
	case PageBlocked:
		c.limiter.OnRateLimit()
		return "", resilience.NewTransientError(eris.Errorf("registry: blocked fetching %s", dot), resp.StatusCode)
	case PageNotFound, PageInactive:
		return "", eris.Wrapf(ErrRecordNotFound, "dot %s", dot)
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("registry: unexpected status %d fetching %s", resp.StatusCode, dot)
	}

	c.limiter.OnSuccess()
	return decode(body, resp.Header.Get("Content-Type"))
}

// Ping issues a GET against the registry root. Any non-5xx answer means the
// registry is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/", nil)
	if err != nil {
		return eris.Wrap(err, "registry: build ping request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "registry: unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return eris.Errorf("registry: ping returned status %d", resp.StatusCode)
	}
	return nil
}

// decode converts body to UTF-8 using the charset named in contentType.
// Bodies without a declared charset are returned as-is.
func decode(body []byte, contentType string) (string, error) {
	if contentType == "" {
		return string(body), nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return string(body), nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return "", eris.Wrapf(err, "registry: unsupported charset %q", cs)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "registry: decode %s body", cs)
	}
	return string(out), nil
}
