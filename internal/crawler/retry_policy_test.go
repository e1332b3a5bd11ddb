package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	transport := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"transport error", transport, 1, true},
		{"attempts exhausted", transport, 3, false},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, 1, true},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, 2, true},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, 1, false},
		{"forbidden", &StatusError{StatusCode: http.StatusForbidden}, 1, false},
		{"wrapped status", fmt.Errorf("search: %w", &StatusError{StatusCode: 503}), 1, true},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformedResponse), 1, false},
		{"acquisition", &AcquisitionError{Missing: []string{"XSRF-TOKEN"}}, 1, false},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), 1, false},
		{"client timeout", fmt.Errorf("detail request: %w", context.DeadlineExceeded), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestRetryPolicyBackoffGrowsWithinCeiling(t *testing.T) {
	p := NewRetryPolicy(10, 100*time.Millisecond, time.Second)
	transport := errors.New("timeout")

	for attempt, full := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 800 * time.Millisecond,
		5: time.Second,
		9: time.Second,
	} {
		for range 20 {
			d := p.Backoff(transport, attempt)
			assert.GreaterOrEqual(t, d, full/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, full, "attempt %d", attempt)
		}
	}
}

func TestRetryPolicyBackoffUsesRetryAfter(t *testing.T) {
	p := NewRetryPolicy(3, 10*time.Millisecond, 5*time.Second)

	assert.Equal(t, 2*time.Second, p.Backoff(&StatusError{StatusCode: 429, RetryAfter: 2 * time.Second}, 1))
	assert.Equal(t, 5*time.Second, p.Backoff(&StatusError{StatusCode: 503, RetryAfter: time.Hour}, 1),
		"Retry-After is capped at the ceiling")
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	p := NewExponentialRetryPolicy()
	assert.Equal(t, 3, p.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.baseDelay)
	assert.Equal(t, 10*time.Second, p.maxDelay)

	p = NewRetryPolicy(0, 2*time.Minute, time.Second)
	assert.Equal(t, 2*time.Minute, p.maxDelay, "ceiling never drops below the base delay")
}

func TestNewRetryPolicyReplacesNegativeLimits(t *testing.T) {
	p := NewRetryPolicy(-1, -100*time.Millisecond, -time.Second)
	assert.Equal(t, defaultMaxAttempts, p.maxAttempts)
	assert.Equal(t, defaultBaseDelay, p.baseDelay)
	assert.Equal(t, defaultMaxDelay, p.maxDelay)

	assert.NotPanics(t, func() {
		d := p.Backoff(&StatusError{StatusCode: 503}, 1)
		assert.Positive(t, d)
	})
}
