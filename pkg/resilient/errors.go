package resilient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Sentinel errors for resilient calls.
var (
	// ErrTimeout marks an attempt that did not finish within the policy timeout.
	ErrTimeout = errors.New("resilient: attempt timed out")

	// ErrRetriesExhausted is matched by calls that failed every allowed attempt.
	ErrRetriesExhausted = errors.New("resilient: retries exhausted")

	// ErrFatal is matched by calls aborted on a non-retryable error.
	ErrFatal = errors.New("resilient: fatal error")
)

// Reason tells why a call ultimately failed.
type Reason string

const (
	ReasonTimeout   Reason = "timeout"
	ReasonExhausted Reason = "exhausted"
	ReasonFatal     Reason = "fatal"
)

// Error is returned by Call and Do when the operation did not succeed.
// It matches the reason sentinel and the last underlying error with errors.Is.
type Error struct {
	Err      error
	Reason   Reason
	Attempts int
}

// Error returns a message suitable for showing to end users.
func (e *Error) Error() string {
	switch e.Reason {
	case ReasonTimeout:
		return fmt.Sprintf("the request timed out after %d attempt(s)", e.Attempts)
	case ReasonExhausted:
		return fmt.Sprintf("the request failed after %d attempt(s): %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("the request failed: %v", e.Err)
	}
}

// Unwrap exposes the reason sentinel and the underlying error.
func (e *Error) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Reason {
	case ReasonTimeout:
		return ErrTimeout
	case ReasonExhausted:
		return ErrRetriesExhausted
	default:
		return ErrFatal
	}
}

// ReasonOf returns the failure reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return "", false
}

// StatusError reports an unexpected response status from a remote source.
type StatusError struct {
	Body []byte
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilient: unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Retryable reports whether the status is transient.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusRequestTimeout,
		http.StatusTooEarly,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type retryableError struct {
	err error
}

func (e retryableError) Error() string   { return e.err.Error() }
func (e retryableError) Unwrap() error   { return e.err }
func (e retryableError) Retryable() bool { return true }

// Retryable marks err as transient so Call retries it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable is the default classifier. Timeouts, network errors,
// refused or reset connections, truncated responses, and errors reporting
// Retryable() == true are retryable; everything else is fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
