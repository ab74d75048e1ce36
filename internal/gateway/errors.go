package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired signals that the privileged access token was rejected.
// Callers drop the stored token and ask the user to log in again.
var ErrSessionExpired = errors.New("session expired")

// Error describes a failed backend call.
type Error struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	return e.Err
}

// Code implements the error-code hook used by handler summary logging.
func (e *Error) Code() string {
	if e.Status != 0 {
		return fmt.Sprintf("GATEWAY_%d", e.Status)
	}
	return "GATEWAY_UNREACHABLE"
}

// Retryable reports whether the call may be retried without side effects.
func (e *Error) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
