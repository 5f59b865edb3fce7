package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
)

var errQuota = errors.New("quota exceeded")

// failingKV fails every operation.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errQuota }

func (failingKV) Set(context.Context, string, []byte, time.Duration) error { return errQuota }

func (failingKV) Delete(context.Context, ...string) error { return errQuota }

func (failingKV) Scan(context.Context, string) ([]string, error) { return nil, errQuota }

func (failingKV) Ping(context.Context) error { return errQuota }

// ttlKV records the native TTL of the last write.
type ttlKV struct {
	*cache.MapKV
	last time.Duration
	mu   sync.Mutex
}

func (k *ttlKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.Lock()
	k.last = ttl
	k.mu.Unlock()
	return k.MapKV.Set(ctx, key, value, ttl)
}

func TestKVBackend_FailOpen(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := cache.New(
		cache.WithBackend(cache.NewPersistent(failingKV{})),
		cache.WithObserver(rec),
	)
	ctx := context.Background()
	persistent := cache.InBackend(cache.KindPersistent)

	require.NoError(t, cache.Set(ctx, c, "k", "v", persistent))
	_, ok := cache.Get[string](ctx, c, "k", persistent)
	require.False(t, ok)
	c.Delete(ctx, "k")
	c.Clear(ctx, cache.KindPersistent)
	require.Zero(t, c.PurgeExpired(ctx))

	require.GreaterOrEqual(t, rec.count(cache.EventStorageFault), 4)
	require.ErrorIs(t, c.Ping(ctx), errQuota)
}

func TestKVBackend_CorruptPayload(t *testing.T) {
	t.Parallel()

	kv := cache.NewMapKV()
	b := cache.NewPersistent(kv)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "persistent:k", []byte("{broken"), 0))

	_, ok := b.Get(ctx, "k")
	require.False(t, ok)

	_, err := kv.Get(ctx, "persistent:k")
	require.ErrorIs(t, err, cache.ErrNotFound, "corrupt payload should be removed")
}

func TestKVBackend_Namespace(t *testing.T) {
	t.Parallel()

	kv := cache.NewMapKV()
	ctx := context.Background()
	a := cache.NewPersistent(kv, cache.WithNamespace("a"))
	b := cache.NewPersistent(kv, cache.WithNamespace("b"))

	e, err := cache.Encode("v", time.Minute, false, 0, time.Now())
	require.NoError(t, err)

	a.Set(ctx, "fetch:/x", e)
	b.Set(ctx, "fetch:/y", e)

	require.Equal(t, []string{"fetch:/x"}, a.Keys(ctx, "fetch:"))
	a.Clear(ctx)
	require.Empty(t, a.Keys(ctx, ""))
	require.Equal(t, []string{"fetch:/y"}, b.Keys(ctx, ""))
}

func TestSessionBackend(t *testing.T) {
	t.Parallel()

	t.Run("requires a scope", func(t *testing.T) {
		t.Parallel()

		kv := cache.NewMapKV()
		b := cache.NewSession(kv)
		ctx := context.Background()

		e, err := cache.Encode("v", time.Minute, false, 0, time.Now())
		require.NoError(t, err)

		b.Set(ctx, "k", e)
		keys, err := kv.Scan(ctx, "")
		require.NoError(t, err)
		require.Empty(t, keys)

		_, ok := b.Get(ctx, "k")
		require.False(t, ok)
	})

	t.Run("native ttl is capped by the scope", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		kv := &ttlKV{MapKV: cache.NewMapKV(clock)}
		b := cache.NewSession(kv, cache.WithStoreClock(clock))
		ctx := cache.WithScope(context.Background(), cache.Scope{ID: "s1", ExpiresAt: now.Add(10 * time.Second)})

		e, err := cache.Encode("v", time.Hour, false, 0, now)
		require.NoError(t, err)
		b.Set(ctx, "k", e)

		kv.mu.Lock()
		defer kv.mu.Unlock()
		require.Equal(t, 10*time.Second, kv.last)
	})

	t.Run("expired scope reads as empty", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		b := cache.NewSession(cache.NewMapKV())
		live := cache.WithScope(context.Background(), cache.Scope{ID: "s1"})
		dead := cache.WithScope(context.Background(), cache.Scope{ID: "s1", ExpiresAt: now.Add(-time.Second)})

		e, err := cache.Encode("v", time.Hour, false, 0, now)
		require.NoError(t, err)
		b.Set(live, "k", e)

		_, ok := b.Get(live, "k")
		require.True(t, ok)
		_, ok = b.Get(dead, "k")
		require.False(t, ok)
	})
}

func TestMapKV_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	kv := cache.NewMapKV(clock)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, kv.Set(ctx, "b", []byte("2"), 0))

	now = now.Add(2 * time.Second)

	_, err := kv.Get(ctx, "a")
	require.ErrorIs(t, err, cache.ErrNotFound)

	n, err := kv.PruneExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "expired key was already dropped on read")

	keys, err := kv.Scan(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)
}
