package httpds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedBody is returned when a 2xx response cannot be decoded.
var ErrMalformedBody = errors.New("httpds: malformed response body")

var errRateWait = errors.New("httpds: rate limiter wait")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Method string
	URL    string // credentials already redacted
	Body   string // leading bytes of the response body

	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("httpds: %s %s: status %d", e.Method, e.URL, e.Code)
	if b := strings.TrimSpace(e.Body); b != "" {
		msg += ": " + b
	}
	return msg
}

// RetryAfter returns the wait requested by the server, if any.
func (e *StatusError) RetryAfter() time.Duration { return e.retryAfter }

// IsRetryableStatus reports whether code is one of the transient statuses.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable classifies errors returned by a single request attempt.
// Transient statuses and transport failures are retryable; other statuses,
// undecodable bodies and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableStatus(se.Code)
	}
	switch {
	case errors.Is(err, ErrMalformedBody),
		errors.Is(err, errRateWait),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

var secretParams = []string{"token", "key", "api_key", "apikey", "access_token"}

// Redact masks credential query parameters in rawURL.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}
