package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/fetch"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
	"github.com/dmitrymomot/stash/pkg/session"
)

// HTTPError is an error with the status and message rendered to the client.
type HTTPError struct {
	// Err is the underlying error (for logging, not exposed to users).
	Err error

	// Message is the user-facing error message.
	Message string

	// Reason is the retrieval failure reason: timeout, exhausted or fatal.
	Reason string

	// Code is the HTTP status code.
	Code int
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

var (
	ErrUpstreamDisabled = NewHTTPError(http.StatusNotFound, "upstream is not configured")
	ErrProfileDisabled  = NewHTTPError(http.StatusNotFound, "profiles are not configured")
	ErrMissingBackend   = NewHTTPError(http.StatusBadRequest, "backend query parameter is required")
	ErrEntryNotFound    = NewHTTPError(http.StatusNotFound, "cache entry not found")
	ErrInvalidBody      = NewHTTPError(http.StatusBadRequest, "request body must be valid json")
	ErrInvalidTTL       = NewHTTPError(http.StatusBadRequest, "ttl must be a positive duration")
)

// toHTTPError maps err onto a status. Failed retrievals keep the
// resilient message, which tells timeouts, exhausted retries and fatal
// upstream errors apart.
func toHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	if reason, ok := resilient.ReasonOf(err); ok {
		code := http.StatusBadGateway
		switch reason {
		case resilient.ReasonTimeout:
			code = http.StatusGatewayTimeout
		case resilient.ReasonExhausted:
			code = http.StatusServiceUnavailable
		}
		return &HTTPError{Err: err, Code: code, Message: err.Error(), Reason: string(reason)}
	}

	switch {
	case errors.Is(err, retrieve.ErrUnknownStrategy),
		errors.Is(err, cache.ErrUnknownKind),
		errors.Is(err, fetch.ErrInvalidPath):
		return &HTTPError{Err: err, Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrExpired):
		return &HTTPError{Err: err, Code: http.StatusUnauthorized, Message: err.Error()}
	}

	return &HTTPError{Err: err, Code: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
}
