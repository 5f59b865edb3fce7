//go:build integration

package maintenance_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/redis"
)

func TestRedisSignals(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	ctx := context.Background()
	client, err := redis.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	bus := maintenance.NewRedisSignals(client, "stash:test:signals")

	// Two caches stand in for two instances sharing Redis.
	c1, c2 := cache.New(), cache.New()
	for _, c := range []*cache.Cache{c1, c2} {
		s, err := maintenance.New(c, maintenance.WithSignals(bus))
		require.NoError(t, err)
		require.NoError(t, s.Start(ctx))
		t.Cleanup(func() { _ = s.Stop(context.Background()) })

		require.NoError(t, cache.Set(ctx, c, "article:1", "v", cache.WithTags("articles")))
	}

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "stash:test:signals").Result()
		return err == nil && n["stash:test:signals"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, maintenance.Signal{Kind: maintenance.SignalTag, Value: "articles"}))

	require.Eventually(t, func() bool {
		return !c1.Has(ctx, "article:1") && !c2.Has(ctx, "article:1")
	}, 2*time.Second, 10*time.Millisecond)
}
