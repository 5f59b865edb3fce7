// Package resilient wraps calls to remote sources with bounded retries,
// linear backoff, and per-attempt timeouts.
//
// # Usage
//
//	balance, err := resilient.Call(ctx, func(ctx context.Context) (Balance, error) {
//	    return rpc.Balance(ctx, wallet)
//	}, resilient.DefaultPolicy())
//	if err != nil {
//	    switch reason, _ := resilient.ReasonOf(err); reason {
//	    case resilient.ReasonTimeout:
//	        // show "timed out"
//	    case resilient.ReasonExhausted:
//	        // show "try again later"
//	    }
//	}
//
// # Algorithm
//
// Each attempt runs on its own goroutine raced against [Policy.Timeout].
// A lost race counts as a retryable failure ([ErrTimeout]). Retryable
// failures wait min(BaseDelay*attempt, MaxDelay) and try again until
// MaxRetries retries are used up; anything [IsRetryable] rejects aborts
// immediately. Attempts are strictly sequential.
//
// Abandoned attempts are not killed: their context is cancelled, and an
// operation that ignores it keeps running in the background. Side effects
// may therefore happen more than once.
//
// # Errors
//
// Failures are returned as [*Error]. Its message is meant for end users and
// distinguishes a timeout, exhausted retries, and a fatal error. It matches
// [ErrTimeout], [ErrRetriesExhausted], or [ErrFatal] and the last
// underlying error with [errors.Is].
//
// Mark your own transient errors with [Retryable], or return a
// [*StatusError] for HTTP responses.
//
// # Tracing
//
// Every call opens an OpenTelemetry span (see [WithName]) with one event per
// attempt, using the globally registered tracer provider.
package resilient
