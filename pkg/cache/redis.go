package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV is a KV driver backed by Redis.
type RedisKV struct {
	client redis.UniversalClient
	opts   *redisOptions
}

// NewRedisKV creates a Redis-backed KV driver.
// The client should be obtained from pkg/redis.Open or pkg/redis.MustOpen.
//
// Example:
//
//	client := redis.MustOpen(ctx, os.Getenv("REDIS_URL"))
//	persistent := cache.NewPersistent(cache.NewRedisKV(client, cache.WithPrefix("journal")))
func NewRedisKV(client redis.UniversalClient, opts ...RedisOption) *RedisKV {
	o := defaultRedisOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &RedisKV{
		client: client,
		opts:   o,
	}
}

// Get retrieves the raw value stored under key.
// Returns ErrNotFound if the key does not exist.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefixedKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores value under key. Redis interprets a zero expiration as
// "persist", so non-positive TTLs are passed as 0.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefixedKey(key), value, max(ttl, 0)).Err()
}

// Delete removes keys from Redis.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefixedKey(k)
	}
	return r.client.Del(ctx, full...).Err()
}

// Scan lists keys starting with prefix using SCAN.
// This is safe for production use as SCAN does not block the server.
func (r *RedisKV) Scan(ctx context.Context, prefix string) ([]string, error) {
	pattern := r.prefixedKey(escapeGlob(prefix)) + "*"
	strip := r.prefixedKey("")

	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, r.opts.scanCount).Result()
		if err != nil {
			return nil, err
		}

		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, strip))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Ping verifies connectivity to Redis.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// prefixedKey returns the full Redis key with prefix.
func (r *RedisKV) prefixedKey(key string) string {
	if r.opts.prefix == "" {
		return key
	}
	return r.opts.prefix + ":" + key
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

var (
	_ KV     = (*RedisKV)(nil)
	_ Pinger = (*RedisKV)(nil)
)
