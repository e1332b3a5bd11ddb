package crawler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy decides whether and when a failed upstream call is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	// Backoff returns the wait before attempt+1. err lets a policy honour Retry-After.
	Backoff(err error, attempt int) time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

// ExponentialRetryPolicy doubles the wait on every attempt up to a ceiling and applies
// equal jitter. A server-sent Retry-After replaces the computed wait but never exceeds the ceiling.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy returns the policy used when none is configured.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return NewRetryPolicy(0, 0, 0)
}

// NewRetryPolicy builds a policy from explicit limits; non-positive values select the defaults.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	p := &ExponentialRetryPolicy{
		maxAttempts: positiveOr(maxAttempts, defaultMaxAttempts),
		baseDelay:   positiveOr(baseDelay, defaultBaseDelay),
		maxDelay:    positiveOr(maxDelay, defaultMaxDelay),
	}
	p.maxDelay = max(p.maxDelay, p.baseDelay)
	return p
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// ShouldRetry reports whether err is transient and attempts remain. Authorization,
// acquisition and decoding failures are never retried here; the client owns 403 recovery.
// A deadline error is a transport timeout: callers check their own context before asking.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	switch {
	case err == nil, attempt >= p.maxAttempts:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrAcquisition):
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return true
}

// Backoff returns a wait in [d/2, d] where d = base * 2^(attempt-1), capped at the ceiling.
func (p *ExponentialRetryPolicy) Backoff(err error, attempt int) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return min(statusErr.RetryAfter, p.maxDelay)
	}

	delay := p.baseDelay
	for i := 1; i < attempt && delay < p.maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, p.maxDelay)
	half := delay / 2
	return half + rand.N(delay-half+1)
}
