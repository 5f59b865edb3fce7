package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/logger"
	"github.com/dmitrymomot/stash/pkg/resilient"
)

// Fetch loads a value from the remote source.
type Fetch[T any] func(ctx context.Context) (T, error)

// Option configures a Retriever.
type Option func(*Retriever)

// WithPolicy sets the retry policy for remote fetches.
// Default: resilient.DefaultPolicy().
func WithPolicy(p resilient.Policy) Option {
	return func(r *Retriever) {
		r.policy = p
	}
}

// WithObserver sets the observer for revalidation and fallback events.
// Default: the cache's observer.
func WithObserver(o cache.Observer) Option {
	return func(r *Retriever) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger passed to resilient calls.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnRetry registers a hook called before each retry of a remote fetch.
func WithOnRetry(fn func(key string, attempt int, err error, delay time.Duration)) Option {
	return func(r *Retriever) {
		r.onRetry = fn
	}
}

// flight is the state shared by a Retriever and its policy views.
type flight struct {
	inflight map[string]struct{}
	group    singleflight.Group
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Retriever runs retrieval strategies against a cache.
type Retriever struct {
	cache    *cache.Cache
	flight   *flight
	observer cache.Observer
	logger   *slog.Logger
	onRetry  func(key string, attempt int, err error, delay time.Duration)
	policy   resilient.Policy
}

// New creates a Retriever over c.
func New(c *cache.Cache, opts ...Option) *Retriever {
	r := &Retriever{
		cache:    c,
		flight:   &flight{inflight: make(map[string]struct{})},
		observer: c.Observer(),
		logger:   logger.NewNope(),
		policy:   resilient.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithPolicy returns a view using p. The view shares in-flight tracking
// and Wait with r.
func (r *Retriever) WithPolicy(p resilient.Policy) *Retriever {
	view := *r
	view.policy = p
	return &view
}

// Cache returns the underlying cache.
func (r *Retriever) Cache() *cache.Cache {
	return r.cache
}

// Wait blocks until every background revalidation has finished.
func (r *Retriever) Wait() {
	r.flight.wg.Wait()
}

// Revalidating reports whether a background revalidation for key is running
// in the backend selected by opts and, for the session backend, the scope
// carried by ctx.
func (r *Retriever) Revalidating(ctx context.Context, key string, opts ...cache.EntryOption) bool {
	r.flight.mu.Lock()
	defer r.flight.mu.Unlock()
	_, ok := r.flight.inflight[r.flightKey(ctx, key, opts)]
	return ok
}

// flightKey identifies one stored entry: equal keys in different backends
// or session scopes never share a fetch.
func (r *Retriever) flightKey(ctx context.Context, key string, opts []cache.EntryOption) string {
	kind := r.cache.Target(opts...)
	scope := ""
	if kind == cache.KindSession {
		if s, ok := cache.ScopeFromContext(ctx); ok {
			scope = s.ID
		}
	}
	return string(kind) + "\x00" + scope + "\x00" + key
}

func (r *Retriever) callOptions(op, key string) []resilient.Option {
	opts := []resilient.Option{
		resilient.WithName(op + " " + key),
		resilient.WithLogger(r.logger),
	}
	if r.onRetry != nil {
		hook := r.onRetry
		opts = append(opts, resilient.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			hook(key, attempt, err, delay)
		}))
	}
	return opts
}

func (r *Retriever) observe(ctx context.Context, ev cache.Event) {
	r.observer.Observe(ctx, ev)
}

// fetchAndStore fetches key through the resilient wrapper and caches the
// result. Concurrent callers for the same entry share one fetch. The shared
// fetch is detached from every caller's cancellation; each caller stops
// waiting when its own ctx is done.
func fetchAndStore[T any](ctx context.Context, r *Retriever, key string, fetch Fetch[T], opts []cache.EntryOption) (T, error) {
	var zero T
	ctx = logger.WithCacheKey(ctx, key)

	shared := context.WithoutCancel(ctx)
	ch := r.flight.group.DoChan(r.flightKey(ctx, key, opts), func() (any, error) {
		val, err := resilient.Call[T](shared, fetch, r.policy, r.callOptions("retrieve", key)...)
		if err != nil {
			return nil, err
		}
		store(shared, r, key, val, opts)
		return val, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, &resilient.Error{Reason: resilient.ReasonFatal, Err: ctx.Err()}
	}
	if res.Err != nil {
		return zero, res.Err
	}

	val, ok := res.Val.(T)
	if !ok {
		// Another caller shared the flight with a different result type.
		return resilient.Call[T](ctx, fetch, r.policy, r.callOptions("retrieve", key)...)
	}
	return val, nil
}

// revalidate starts a background refresh of key unless one is running.
func revalidate[T any](ctx context.Context, r *Retriever, key string, fetch Fetch[T], opts []cache.EntryOption) {
	f := r.flight
	fk := r.flightKey(ctx, key, opts)

	f.mu.Lock()
	if _, busy := f.inflight[fk]; busy {
		f.mu.Unlock()
		r.observe(ctx, cache.Event{Type: cache.EventRevalidateSkipped, Key: key})
		return
	}
	f.inflight[fk] = struct{}{}
	f.wg.Add(1)
	f.mu.Unlock()

	bg := logger.WithCacheKey(context.WithoutCancel(ctx), key)
	r.observe(bg, cache.Event{Type: cache.EventRevalidateStarted, Key: key})

	go func() {
		defer f.wg.Done()
		defer func() {
			f.mu.Lock()
			delete(f.inflight, fk)
			f.mu.Unlock()
		}()
		defer func() {
			if p := recover(); p != nil {
				r.observe(bg, cache.Event{
					Type: cache.EventRevalidateFailed,
					Key:  key,
					Err:  fmt.Errorf("retrieve: revalidation panicked: %v", p),
				})
			}
		}()

		val, err := resilient.Call[T](bg, fetch, r.policy, r.callOptions("revalidate", key)...)
		if err != nil {
			r.observe(bg, cache.Event{Type: cache.EventRevalidateFailed, Key: key, Err: err})
			return
		}
		if !store(bg, r, key, val, opts) {
			return
		}
		r.observe(bg, cache.Event{Type: cache.EventRevalidateSucceeded, Key: key})
	}()
}

// store writes val, reporting encode failures instead of returning them:
// the fetched value is still good for the caller.
func store[T any](ctx context.Context, r *Retriever, key string, val T, opts []cache.EntryOption) bool {
	if err := cache.Set(ctx, r.cache, key, val, opts...); err != nil {
		r.observe(ctx, cache.Event{Type: cache.EventStorageFault, Key: key, Op: "encode", Err: err})
		return false
	}
	return true
}
