package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrCredentialMissing indicates no usable stored credential; it only triggers acquisition.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrAcquisition indicates the browser session did not yield both tokens.
	ErrAcquisition = errors.New("session acquisition failed")
	// ErrAuthorizationDenied is returned by the upstream as HTTP 403.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrPersistentAuthorization indicates a 403 survived a credential refresh.
	ErrPersistentAuthorization = errors.New("authorization denied after credential refresh")
	// ErrDetailFetch indicates a detail document could not be fetched or decoded.
	ErrDetailFetch = errors.New("detail fetch failed")
	// ErrMalformedResponse indicates an upstream body that is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrUpstream indicates a non-success status other than 403.
	ErrUpstream = errors.New("upstream request failed")
)

// AcquisitionError lists which tokens were missing after the settle window.
type AcquisitionError struct {
	Missing []string
	Cause   error
}

func (e *AcquisitionError) Error() string {
	msg := ErrAcquisition.Error()
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is lets errors.Is match ErrAcquisition.
func (e *AcquisitionError) Is(target error) bool {
	return target == ErrAcquisition
}

func (e *AcquisitionError) Unwrap() error {
	return e.Cause
}

// StatusError carries the HTTP status of a failed upstream call.
type StatusError struct {
	Endpoint   string
	StatusCode int
	// RetryAfter is the server's requested wait, zero when absent.
	RetryAfter time.Duration
}

// Transient reports whether the status is worth retrying: 429 or any 5xx.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", ErrUpstream, e.Endpoint, e.StatusCode)
}

// Is lets errors.Is match ErrUpstream and, for 403, ErrAuthorizationDenied.
func (e *StatusError) Is(target error) bool {
	if target == ErrUpstream {
		return true
	}
	return target == ErrAuthorizationDenied && e.StatusCode == 403
}
