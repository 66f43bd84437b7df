// Package retry runs an operation under a bounded exponential backoff policy.
//
// It is shared by every HTTP-backed fetcher so that the attempt budget, the
// backoff schedule and the classification of transient failures live in one
// place instead of being re-implemented per source.
//
// Failures are classified by Policy.Retryable. Non-retryable failures stop
// immediately and are returned unchanged; retryable failures are retried until
// the attempt budget is spent, after which the last error is returned wrapped
// in ErrExhausted. Errors that carry a server-provided wait (see Hinter) raise
// the next backoff to at least that wait.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped around the last error once all attempts failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Hinter is implemented by errors that know how long the caller should wait
// before trying again (e.g. an HTTP Retry-After header).
type Hinter interface {
	RetryAfter() time.Duration
}

// Policy describes the attempt budget and backoff schedule.
//
// Zero values are given defaults:
//   - MaxAttempts:     5 (total attempts, including the first)
//   - InitialInterval: 1s
//   - MaxInterval:     30s
//   - Multiplier:      2
//
// Jitter is the randomization factor passed to the backoff schedule; zero
// disables jitter.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64

	// Retryable reports whether err is transient. When nil, every error except
	// cancellation is treated as transient. Nothing is retried once the
	// caller's context is done.
	Retryable func(error) bool

	// Notify, when set, is called before each wait with the failed attempt
	// number (1-based), its error and the upcoming wait.
	Notify func(attempt int, err error, wait time.Duration)

	// newTimer is swapped in tests to avoid real waits.
	newTimer func() backoff.Timer
}

// Default returns the policy used for outbound API calls.
func Default() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		Jitter:          0.2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 30 * time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempt budget is spent, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	hinted := &hintedBackOff{BackOff: exp, max: p.MaxInterval}
	bo := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(p.MaxAttempts-1)), ctx)

	var (
		attempt   int
		permanent bool
	)
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		var h Hinter
		if errors.As(err, &h) {
			hinted.hint = h.RetryAfter()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempt, err, wait)
		}
	}

	var timer backoff.Timer
	if p.newTimer != nil {
		timer = p.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, bo, notify, timer)
	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// hintedBackOff raises the next interval to a server-provided hint, capped at
// max. The hint applies to one wait only.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
		if h.max > 0 && next > h.max {
			next = h.max
		}
	}
	h.hint = 0
	return next
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.BackOff.Reset()
}
