//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/redis"
)

const testRedisURL = "redis://localhost:6379/0"

func newTestRedisClient(t *testing.T) goredis.UniversalClient {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = testRedisURL
	}

	ctx := context.Background()
	client, err := redis.Open(ctx, url)
	require.NoError(t, err, "failed to connect to Redis")

	t.Cleanup(func() {
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})

	return client
}

func TestRedisKV(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrNotFound for missing key", func(t *testing.T) {
		t.Parallel()

		kv := cache.NewRedisKV(newTestRedisClient(t), cache.WithPrefix("test-miss"))

		_, err := kv.Get(context.Background(), "missing")
		require.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("applies native ttl", func(t *testing.T) {
		t.Parallel()

		client := newTestRedisClient(t)
		kv := cache.NewRedisKV(client, cache.WithPrefix("test-ttl"))
		ctx := context.Background()

		require.NoError(t, kv.Set(ctx, "k", []byte("v"), time.Minute))

		ttl, err := client.TTL(ctx, "test-ttl:k").Result()
		require.NoError(t, err)
		require.Greater(t, ttl, 50*time.Second)
	})

	t.Run("scans keys with glob characters in the prefix", func(t *testing.T) {
		t.Parallel()

		kv := cache.NewRedisKV(newTestRedisClient(t), cache.WithPrefix("test-scan"), cache.WithScanCount(2))
		ctx := context.Background()

		for _, k := range []string{"fetch:/a?x=1", "fetch:/a?x=2", "fetch:/b", "profile:1"} {
			require.NoError(t, kv.Set(ctx, k, []byte("v"), time.Minute))
		}

		keys, err := kv.Scan(ctx, "fetch:/a?")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"fetch:/a?x=1", "fetch:/a?x=2"}, keys)

		require.NoError(t, kv.Delete(ctx, keys...))
		keys, err = kv.Scan(ctx, "")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"fetch:/b", "profile:1"}, keys)
	})

	t.Run("backs the persistent and session backends", func(t *testing.T) {
		t.Parallel()

		kv := cache.NewRedisKV(newTestRedisClient(t), cache.WithPrefix("test-backends"))
		c := cache.New(
			cache.WithBackend(cache.NewPersistent(kv)),
			cache.WithBackend(cache.NewSession(kv)),
		)
		ctx := cache.WithScope(context.Background(), cache.Scope{ID: "s1", ExpiresAt: time.Now().Add(time.Hour)})

		require.NoError(t, cache.Set(ctx, c, "k", "persistent", cache.InBackend(cache.KindPersistent), cache.WithTags("t")))
		require.NoError(t, cache.Set(ctx, c, "k", "session", cache.InBackend(cache.KindSession), cache.WithTags("t")))

		v, ok := cache.Get[string](ctx, c, "k", cache.InBackend(cache.KindSession))
		require.True(t, ok)
		require.Equal(t, "session", v)

		require.Equal(t, 2, c.InvalidateByTag(ctx, "t"))
		require.False(t, c.Has(ctx, "k", cache.InBackend(cache.KindPersistent)))
		require.NoError(t, c.Ping(ctx))
	})
}
