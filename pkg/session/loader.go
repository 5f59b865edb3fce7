package session

import (
	"context"
	"time"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/retrieve"
)

// ProfileKeyPrefix namespaces cached per-session profiles.
const ProfileKeyPrefix = "profile:"

// ProfileKey returns the cache key of the profile loaded for session id.
func ProfileKey(id string) string {
	return ProfileKeyPrefix + id
}

// LoadFunc loads the profile of s from the remote source.
type LoadFunc[T any] func(ctx context.Context, s *Session) (T, error)

// Loader caches a per-session profile in the session backend. Loads are
// network-first: a fresh copy is preferred and the cached one is served
// while the remote source is unavailable.
type Loader[T any] struct {
	retriever *retrieve.Retriever
	load      LoadFunc[T]
	now       func() time.Time
	ttl       time.Duration
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	now func() time.Time
	ttl time.Duration
}

// WithProfileTTL sets how long a loaded profile stays cached.
// It is capped at the session's remaining lifetime. Default: 10 minutes.
func WithProfileTTL(ttl time.Duration) LoaderOption {
	return func(o *loaderOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLoaderClock sets the time source. Default: time.Now.
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(o *loaderOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewLoader creates a profile loader. r's cache must have a session backend.
func NewLoader[T any](r *retrieve.Retriever, load LoadFunc[T], opts ...LoaderOption) *Loader[T] {
	o := loaderOptions{now: time.Now, ttl: 10 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{retriever: r, load: load, now: o.now, ttl: o.ttl}
}

// Load returns the profile of the session carried by ctx.
func (l *Loader[T]) Load(ctx context.Context) (T, error) {
	var zero T

	s, ok := FromContext(ctx)
	if !ok {
		return zero, ErrNoSession
	}
	now := l.now()
	if s.IsExpired(now) {
		return zero, ErrExpired
	}

	ctx = cache.WithScope(ctx, s.Scope())
	ttl := min(l.ttl, s.Remaining(now))

	return retrieve.NetworkFirst(ctx, l.retriever, ProfileKey(s.ID),
		func(ctx context.Context) (T, error) { return l.load(ctx, s) },
		cache.InBackend(cache.KindSession),
		cache.WithTTL(ttl),
		cache.WithTags(ProfileKeyPrefix+"all"),
	)
}

// Forget drops the cached profile of the session carried by ctx.
func (l *Loader[T]) Forget(ctx context.Context) {
	s, ok := FromContext(ctx)
	if !ok {
		return
	}
	l.retriever.Cache().Delete(cache.WithScope(ctx, s.Scope()), ProfileKey(s.ID))
}
