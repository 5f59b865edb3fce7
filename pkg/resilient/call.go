package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrymomot/stash/pkg/resilient"

type result[T any] struct {
	val T
	err error
}

// Call runs op under policy p and returns its value.
//
// Each attempt runs on its own goroutine and is raced against p.Timeout;
// an attempt that loses the race is abandoned, not killed, so op should
// honor its context. Retryable failures are retried after
// min(BaseDelay*attempt, MaxDelay) until MaxRetries is used up; a fatal
// failure returns immediately. Attempts never overlap. Cancelling ctx
// aborts the call.
//
// On failure the returned error is an *Error.
func Call[T any](ctx context.Context, op func(ctx context.Context) (T, error), p Policy, opts ...Option) (T, error) {
	var zero T

	o := defaultCallOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, o.name,
		trace.WithAttributes(
			attribute.Int("resilient.max_retries", p.MaxRetries),
			attribute.String("resilient.timeout", p.Timeout.String()),
		),
	)
	defer span.End()

	var (
		lastErr  error
		attempts = p.attempts()
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("resilient.attempt", attempt)))

		val, err := runAttempt(ctx, op, p.Timeout)
		if err == nil {
			span.SetAttributes(attribute.Int("resilient.attempts", attempt))
			span.SetStatus(codes.Ok, "")
			return val, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fail(span, &Error{Reason: ReasonFatal, Attempts: attempt, Err: withCause(ctxErr, err)})
		}

		if !o.classify(err) {
			o.logger.DebugContext(ctx, "fatal error, not retrying",
				slog.String("call", o.name),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return zero, fail(span, &Error{Reason: ReasonFatal, Attempts: attempt, Err: err})
		}

		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		o.logger.DebugContext(ctx, "retrying",
			slog.String("call", o.name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if o.onRetry != nil {
			o.onRetry(attempt, err, delay)
		}

		if err := wait(ctx, delay); err != nil {
			return zero, fail(span, &Error{Reason: ReasonFatal, Attempts: attempt, Err: withCause(err, lastErr)})
		}
	}

	reason := ReasonExhausted
	if errors.Is(lastErr, ErrTimeout) {
		reason = ReasonTimeout
	}
	return zero, fail(span, &Error{Reason: reason, Attempts: attempts, Err: lastErr})
}

// withCause joins the cancellation err with the attempt failure cause,
// unless cause already is that cancellation.
func withCause(err, cause error) error {
	if cause == nil || errors.Is(cause, err) {
		return err
	}
	return errors.Join(err, cause)
}

// Do is Call for operations without a result.
func Do(ctx context.Context, op func(ctx context.Context) error, p Policy, opts ...Option) error {
	_, err := Call(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, p, opts...)
	return err
}

// runAttempt races one invocation of op against timeout.
func runAttempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("resilient: operation panicked: %v", r)}
			}
		}()
		v, err := op(attemptCtx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-timer:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// wait blocks for d or until ctx is cancelled.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fail(span trace.Span, err *Error) error {
	span.SetAttributes(
		attribute.Int("resilient.attempts", err.Attempts),
		attribute.String("resilient.reason", string(err.Reason)),
	)
	span.RecordError(err.Err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
