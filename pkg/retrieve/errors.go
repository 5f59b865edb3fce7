package retrieve

import "errors"

// ErrUnknownStrategy is returned when a strategy name is not recognized.
var ErrUnknownStrategy = errors.New("retrieve: unknown strategy")
