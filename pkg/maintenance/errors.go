package maintenance

import "errors"

var (
	// ErrInvalidSignal is returned when a signal payload cannot be parsed.
	ErrInvalidSignal = errors.New("maintenance: invalid signal")

	// ErrInvalidSchedule is returned when a cron expression cannot be parsed.
	ErrInvalidSchedule = errors.New("maintenance: invalid schedule")
)
