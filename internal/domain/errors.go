package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ValidationError marks a request as malformed. It is fatal for the request
// and is returned before any memory is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConnectivityError wraps a failure to reach a backing service (session
// store or model endpoint). Callers may retry.
type ConnectivityError struct {
	Service string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// CapacityError is returned when the tool-call loop exceeds its configured
// iteration limit. The turn fails, but any assistant text produced before
// the limit is still finalized and persisted.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("tool call loop exceeded %d iterations", e.Limit)
}

// IsRetryable reports whether the caller may resubmit the request:
// connectivity failures and timeouts are transient, everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
