package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (t *tagIndex) size() (refs, tags int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byRef), len(t.byTag)
}

func TestPurgeExpired_DropsStaleTagRefs(t *testing.T) {
	t.Parallel()

	t.Run("entries expired by the store", func(t *testing.T) {
		t.Parallel()

		clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		c := New(
			WithClock(clock.Now),
			WithBackend(NewPersistent(NewMapKV(clock.Now), WithStoreClock(clock.Now))),
		)
		ctx := context.Background()

		for i := range 100 {
			require.NoError(t, Set(ctx, c, "k"+strconv.Itoa(i), i,
				InBackend(KindPersistent), WithTTL(time.Second), WithTags("batch")))
		}
		refs, _ := c.tags.size()
		require.Equal(t, 100, refs)

		clock.Advance(time.Hour)
		c.PurgeExpired(ctx)

		refs, tags := c.tags.size()
		assert.Zero(t, refs)
		assert.Zero(t, tags)
		assert.Zero(t, c.InvalidateByTag(ctx, "batch"))
	})

	t.Run("session entries outside the sweep scope", func(t *testing.T) {
		t.Parallel()

		clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		// The driver keeps wall-clock time, so it still holds the entries
		// after the cache clock has moved past their TTL.
		c := New(
			WithClock(clock.Now),
			WithBackend(NewSession(NewMapKV(), WithStoreClock(clock.Now))),
		)
		s1 := WithScope(context.Background(), Scope{ID: "s1"})
		s2 := WithScope(context.Background(), Scope{ID: "s2"})

		require.NoError(t, Set(s1, c, "profile", 1, InBackend(KindSession), WithTTL(time.Second), WithTags("profiles")))
		require.NoError(t, Set(s2, c, "profile", 2, InBackend(KindSession), WithTTL(time.Second), WithTags("profiles")))
		require.NoError(t, Set(s2, c, "fresh", 3, InBackend(KindSession), WithTTL(2*time.Hour), WithTags("profiles")))

		clock.Advance(time.Hour)
		assert.Equal(t, 2, c.PurgeExpired(context.Background()))

		refs, _ := c.tags.size()
		assert.Equal(t, 1, refs)

		b, _ := c.Backend(KindSession)
		assert.Empty(t, b.Keys(s1, ""))
		assert.Equal(t, []string{"fresh"}, b.Keys(s2, ""))
	})
}

func TestInvalidateByTag_CountsStoredEntries(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(
		WithClock(clock.Now),
		WithBackend(NewPersistent(NewMapKV(clock.Now), WithStoreClock(clock.Now))),
	)
	ctx := context.Background()

	require.NoError(t, Set(ctx, c, "gone", 1, InBackend(KindPersistent), WithTTL(time.Second), WithTags("t")))
	require.NoError(t, Set(ctx, c, "kept", 2, InBackend(KindPersistent), WithTTL(time.Hour), WithTags("t")))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.InvalidateByTag(ctx, "t"))
}
