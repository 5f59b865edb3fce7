package maintenance

import (
	"log/slog"
	"time"
)

// Default intervals.
const (
	DefaultMemoryClearInterval = 30 * time.Minute
	DefaultExpirySweepInterval = 5 * time.Minute
)

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	signals        Signals
	memoryCron     string
	sweepCron      string
	memoryInterval time.Duration
	sweepInterval  time.Duration
}

func defaultOptions() *options {
	return &options{
		memoryInterval: DefaultMemoryClearInterval,
		sweepInterval:  DefaultExpirySweepInterval,
	}
}

// WithMemoryClearInterval sets how often the memory backend is cleared
// wholesale. Zero disables the task. Default: 30 minutes.
func WithMemoryClearInterval(d time.Duration) Option {
	return func(o *options) {
		o.memoryInterval = max(d, 0)
	}
}

// WithExpirySweepInterval sets how often expired entries are purged from
// every backend. Zero disables the task. Default: 5 minutes.
func WithExpirySweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = max(d, 0)
	}
}

// WithMemoryClearSchedule runs the memory clear on a standard 5-field cron
// expression instead of a fixed interval.
func WithMemoryClearSchedule(expr string) Option {
	return func(o *options) {
		o.memoryCron = expr
	}
}

// WithExpirySweepSchedule runs the expiry sweep on a standard 5-field cron
// expression instead of a fixed interval.
func WithExpirySweepSchedule(expr string) Option {
	return func(o *options) {
		o.sweepCron = expr
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSignals subscribes the scheduler to external invalidation signals
// while it is running.
func WithSignals(s Signals) Option {
	return func(o *options) {
		o.signals = s
	}
}
