// Package httpds implements the HTTP datasource used by every API fetcher.
//
// The client wraps net/http with:
//
//   - a per-request timeout,
//   - a token-bucket rate limiter shared by all requests of one source,
//   - retry with exponential backoff (see internal/retry) for HTTP 429, 500,
//     502, 503, 504 and network failures, honoring Retry-After,
//   - JSON decoding that preserves numbers as json.Number,
//   - redaction of credentials carried in query strings (token, key) in
//     every error and log line.
//
// Response bodies are read inside the retry loop, so a connection dropped
// mid-body is retried like any other network failure.
package httpds

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bietl/internal/metrics"
	"bietl/internal/retry"
)

// maxBodyBytes caps how much of a response body is buffered.
const maxBodyBytes = 64 << 20

// Config configures the HTTP datasource client.
//
// Zero values are given sensible defaults:
//   - Timeout: 10s
//   - Retry:   retry.Policy defaults (5 attempts, 1s..30s)
//   - RateLimit: unlimited
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// Retry is the attempt budget and backoff schedule. Retry.Retryable is
	// replaced by IsRetryable when nil.
	Retry retry.Policy

	// RateLimit is the sustained request rate in requests per second.
	// Zero or negative disables limiting.
	RateLimit float64

	// Burst is the limiter bucket size; defaults to 1.
	Burst int

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// BaseHeaders are added to every request. Per-request headers win.
	BaseHeaders http.Header

	// Transport is an optional custom RoundTripper.
	Transport http.RoundTripper

	// Logger receives request and retry diagnostics. Defaults to a no-op.
	Logger *zap.Logger
}

// Client wraps an http.Client with rate limiting, retry and backoff.
type Client struct {
	httpClient  *http.Client
	policy      retry.Policy
	limiter     *rate.Limiter
	baseHeaders http.Header
	log         *zap.Logger
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	hdr := http.Header{}
	for k, vs := range cfg.BaseHeaders {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		policy:      cfg.Retry,
		limiter:     limiter,
		baseHeaders: hdr,
		log:         cfg.Logger,
	}
	if c.policy.Retryable == nil {
		c.policy.Retryable = IsRetryable
	}
	return c
}

// Do sends an HTTP request and returns the full response body of the first
// 2xx response. Non-2xx responses become *StatusError; retryable ones are
// retried under the client's policy.
func (c *Client) Do(
	ctx context.Context,
	method, rawURL string,
	body []byte,
	headers http.Header,
) ([]byte, error) {
	if method == "" {
		return nil, fmt.Errorf("httpds: method must not be empty")
	}
	if rawURL == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}

	safeURL := Redact(rawURL)
	host := hostOf(rawURL)
	policy := c.policy
	policy.Notify = func(attempt int, err error, wait time.Duration) {
		metrics.RecordRetry(host)
		c.log.Warn("retrying request",
			zap.String("method", method),
			zap.String("url", safeURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	var out []byte
	err := policy.Do(ctx, func(ctx context.Context) error {
		b, err := c.attempt(ctx, method, rawURL, body, headers)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// attempt performs exactly one request.
func (c *Client) attempt(
	ctx context.Context,
	method, rawURL string,
	body []byte,
	headers http.Header,
) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", errRateWait, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpds: build request: %w", redactErr(err))
	}
	for k, vs := range c.baseHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpds: %s: %w", method, redactErr(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("httpds: read body: %w", redactErr(err))
	}

	c.log.Debug("http request",
		zap.String("method", method),
		zap.String("url", Redact(rawURL)),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Method:     method,
			URL:        Redact(rawURL),
			Body:       snippet(data),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return data, nil
}

// Get is a convenience wrapper over Do for HTTP GET.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil, headers)
}

// Post is a convenience wrapper over Do for HTTP POST.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, headers http.Header) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, rawURL, body, headers)
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers http.Header, out any) error {
	data, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	return Decode(data, out)
}

// PostJSON encodes payload as the request body, issues a POST and decodes
// the response body into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any, headers http.Header, out any) error {
	body, err := encode(payload)
	if err != nil {
		return fmt.Errorf("httpds: encode payload: %w", err)
	}
	h := http.Header{}
	for k, vs := range headers {
		h[k] = append([]string(nil), vs...)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	data, err := c.Post(ctx, rawURL, body, h)
	if err != nil {
		return err
	}
	return Decode(data, out)
}

// WithQuery returns base with params merged into its query string.
func WithQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("httpds: parse url: %w", redactErr(err))
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func snippet(b []byte) string {
	const n = 512
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func redactErr(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = Redact(ue.URL)
	}
	return err
}
