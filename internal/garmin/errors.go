package garmin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized   = errors.New("garmin: authentication rejected")
	ErrNotFound       = errors.New("garmin: resource not found")
	ErrThrottled      = errors.New("garmin: rate limited by upstream")
	ErrUpstreamError  = errors.New("garmin: upstream internal error (5xx)")
	ErrBadResponse    = errors.New("garmin: invalid response format or malformed data")
	ErrTimeout        = errors.New("garmin: request timed out")
	ErrUnavailable    = errors.New("garmin: host unreachable or transport failure")
	ErrNoRefreshToken = errors.New("garmin: refresh token missing or expired, login required")
)

// APIError wraps a sentinel with request context.
type APIError struct {
	Sentinel   error
	Operation  string
	Status     int
	Body       string
	RetryAfter time.Duration // from the Retry-After header on 429 responses
	Err        error         // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("garmin: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
