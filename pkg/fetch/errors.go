package fetch

import "errors"

var (
	ErrInvalidBaseURL  = errors.New("fetch: invalid base url")
	ErrInvalidPath     = errors.New("fetch: path must start with /")
	ErrInvalidResponse = errors.New("fetch: response is not valid json")
	ErrBodyTooLarge    = errors.New("fetch: response body too large")
)
