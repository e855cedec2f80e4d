package llm

import (
	"errors"
	"fmt"
)

// ErrNotDispatched is returned when a request was cancelled before it was
// sent to the provider.
var ErrNotDispatched = errors.New("request not dispatched")

// TransientError indicates a failure worth retrying: HTTP 408/429/5xx, a
// timeout, or a dropped connection. StatusCode is 0 for transport errors.
type TransientError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient provider error: %s", truncate(e.Message, 200))
	}
	return fmt.Sprintf("transient provider error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func (e *TransientError) Unwrap() error { return e.Err }

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// MalformedResponseError marks a response whose shape or content could not
// be interpreted. It is attached to a Response, never returned as the call
// error.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransient checks if an error is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
