package logger

import (
	"context"
	"log/slog"
)

type cacheKeyCtx struct{}

// WithCacheKey returns a context whose log records carry the cache_key
// attribute when the logger was built with CacheKeyExtractor.
func WithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, cacheKeyCtx{}, key)
}

// CacheKeyFromContext returns the key stored by WithCacheKey.
func CacheKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(cacheKeyCtx{}).(string)
	return key, ok && key != ""
}

// CacheKeyExtractor adds cache_key to records logged with a WithCacheKey context.
func CacheKeyExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		key, ok := CacheKeyFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.String("cache_key", key), true
	}
}
