package resilient

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/stash/pkg/logger"
)

// Option configures a single call.
type Option func(*callOptions)

type callOptions struct {
	classify func(error) bool
	onRetry  func(attempt int, err error, delay time.Duration)
	logger   *slog.Logger
	name     string
}

func defaultCallOptions() *callOptions {
	return &callOptions{
		classify: IsRetryable,
		logger:   logger.NewNope(),
		name:     "resilient.call",
	}
}

// WithClassifier replaces IsRetryable.
func WithClassifier(fn func(error) bool) Option {
	return func(o *callOptions) {
		if fn != nil {
			o.classify = fn
		}
	}
}

// WithOnRetry registers a hook called before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *callOptions) {
		o.onRetry = fn
	}
}

// WithLogger sets the logger for retry diagnostics.
// Default: a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *callOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName sets the span and log name of the call.
func WithName(name string) Option {
	return func(o *callOptions) {
		if name != "" {
			o.name = name
		}
	}
}
