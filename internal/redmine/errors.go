package redmine

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a tracker API failure.
type ErrorKind string

const (
	KindUnreachable  ErrorKind = "tracker_unreachable"
	KindUnauthorized ErrorKind = "tracker_unauthorized"
	KindForbidden    ErrorKind = "tracker_forbidden"
	KindNotFound     ErrorKind = "tracker_not_found"
	KindRateLimited  ErrorKind = "tracker_rate_limited"
	KindMalformed    ErrorKind = "tracker_malformed"
)

// APIError is a typed tracker failure. Unreachable and rate-limited errors
// are retried by the client; the rest surface to the caller unchanged.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Endpoint   string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracker %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("tracker %s: %s (status %d)", e.Endpoint, e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is transient.
func (e *APIError) Retryable() bool {
	return e.Kind == KindUnreachable || e.Kind == KindRateLimited
}

// KindOf extracts the failure kind from an error chain, or "" for
// non-tracker errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
