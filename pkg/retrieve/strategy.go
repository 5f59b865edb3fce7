package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/stash/pkg/cache"
)

// Strategy names a retrieval policy.
type Strategy string

const (
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// ParseStrategy converts a configuration or query string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyCacheFirst, StrategyNetworkFirst, StrategyStaleWhileRevalidate:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Run dispatches to the named strategy.
func Run[T any](ctx context.Context, r *Retriever, s Strategy, key string, fetch Fetch[T], opts ...cache.EntryOption) (T, error) {
	switch s {
	case StrategyCacheFirst:
		return CacheFirst(ctx, r, key, fetch, opts...)
	case StrategyNetworkFirst:
		return NetworkFirst(ctx, r, key, fetch, opts...)
	case StrategyStaleWhileRevalidate:
		return StaleWhileRevalidate(ctx, r, key, fetch, opts...)
	}

	var zero T
	return zero, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// CacheFirst returns the cached value when present. On a miss it fetches
// through the resilient wrapper, stores the result, and returns it; fetch
// errors propagate because there is nothing to fall back to.
func CacheFirst[T any](ctx context.Context, r *Retriever, key string, fetch Fetch[T], opts ...cache.EntryOption) (T, error) {
	if v, ok := cache.Get[T](ctx, r.cache, key, opts...); ok {
		return v, nil
	}
	return fetchAndStore(ctx, r, key, fetch, opts)
}

// NetworkFirst fetches first and stores the result. If the fetch fails it
// serves the cached value, and only propagates the error when the cache
// has nothing for key.
func NetworkFirst[T any](ctx context.Context, r *Retriever, key string, fetch Fetch[T], opts ...cache.EntryOption) (T, error) {
	v, err := fetchAndStore(ctx, r, key, fetch, opts)
	if err == nil {
		return v, nil
	}

	if cached, ok := cache.Get[T](ctx, r.cache, key, opts...); ok {
		r.observe(ctx, cache.Event{Type: cache.EventFallback, Key: key, Err: err})
		return cached, nil
	}
	return v, err
}

// StaleWhileRevalidate returns the cached value immediately and refreshes
// it in the background. At most one background refresh per key runs at a
// time; its failures are reported to the observer and never returned.
// On a miss it behaves like CacheFirst.
func StaleWhileRevalidate[T any](ctx context.Context, r *Retriever, key string, fetch Fetch[T], opts ...cache.EntryOption) (T, error) {
	cached, ok := cache.Get[T](ctx, r.cache, key, opts...)
	if !ok {
		return fetchAndStore(ctx, r, key, fetch, opts)
	}

	revalidate(ctx, r, key, fetch, opts)
	return cached, nil
}
