package session_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
	"github.com/dmitrymomot/stash/pkg/session"
)

type profile struct {
	Name string `json:"name"`
}

func newCache() *cache.Cache {
	return cache.New(
		cache.WithBackend(cache.NewPersistent(cache.NewMapKV())),
		cache.WithBackend(cache.NewSession(cache.NewMapKV())),
	)
}

func newRetriever(c *cache.Cache) *retrieve.Retriever {
	return retrieve.New(c, retrieve.WithPolicy(resilient.Policy{
		BaseDelay: time.Millisecond,
		Timeout:   time.Second,
	}))
}

func TestSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := session.NewAt(now, time.Hour)

	assert.True(t, session.ValidID(s.ID))
	assert.False(t, session.ValidID("not-a-uuid"))
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.IsExpired(now.Add(59*time.Minute)))
	assert.True(t, s.IsExpired(now.Add(time.Hour)))
	assert.Equal(t, 30*time.Minute, s.Remaining(now.Add(30*time.Minute)))
	assert.Zero(t, s.Remaining(now.Add(2*time.Hour)))

	user := "user-1"
	s.UserID = &user
	assert.True(t, s.IsAuthenticated())

	scope := s.Scope()
	assert.Equal(t, s.ID, scope.ID)
	assert.Equal(t, s.ExpiresAt, scope.ExpiresAt)

	ctx := session.NewContext(context.Background(), s)
	got, ok := session.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	cs, ok := cache.ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, s.ID, cs.ID)

	_, ok = session.FromContext(context.Background())
	assert.False(t, ok)
}

func TestLoader_NetworkFirstFallback(t *testing.T) {
	t.Parallel()

	c := newCache()
	r := newRetriever(c)

	var calls atomic.Int32
	var down atomic.Bool
	loader := session.NewLoader(r, func(_ context.Context, s *session.Session) (profile, error) {
		calls.Add(1)
		if down.Load() {
			return profile{}, errors.New("profile service down")
		}
		return profile{Name: "alice"}, nil
	})

	s := session.New(time.Hour)
	ctx := session.NewContext(context.Background(), s)

	p, err := loader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.True(t, c.Has(ctx, session.ProfileKey(s.ID), cache.InBackend(cache.KindSession)))

	down.Store(true)
	p, err = loader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, int32(2), calls.Load())

	loader.Forget(ctx)
	_, err = loader.Load(ctx)
	require.ErrorIs(t, err, resilient.ErrFatal)
}

func TestLoader_ScopesAreIsolated(t *testing.T) {
	t.Parallel()

	c := newCache()
	r := newRetriever(c)
	loader := session.NewLoader(r, func(_ context.Context, s *session.Session) (profile, error) {
		return profile{Name: s.ID}, nil
	})

	a := session.New(time.Hour)
	b := session.New(time.Hour)
	ctxA := session.NewContext(context.Background(), a)
	ctxB := session.NewContext(context.Background(), b)

	pa, err := loader.Load(ctxA)
	require.NoError(t, err)
	pb, err := loader.Load(ctxB)
	require.NoError(t, err)

	assert.Equal(t, a.ID, pa.Name)
	assert.Equal(t, b.ID, pb.Name)
	assert.False(t, c.Has(ctxB, session.ProfileKey(a.ID), cache.InBackend(cache.KindSession)))
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	c := newCache()
	loader := session.NewLoader(newRetriever(c), func(context.Context, *session.Session) (profile, error) {
		return profile{Name: "x"}, nil
	})

	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNoSession)

	expired := session.NewAt(time.Now().Add(-2*time.Hour), time.Hour)
	_, err = loader.Load(session.NewContext(context.Background(), expired))
	require.ErrorIs(t, err, session.ErrExpired)

	// Forget without a session is a no-op.
	loader.Forget(context.Background())
}

func TestCacheStore(t *testing.T) {
	t.Parallel()

	c := newCache()
	store := session.NewCacheStore(c)
	ctx := context.Background()

	s := session.New(time.Hour)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Millisecond)

	// Entries cached in the session scope go away with the session.
	sctx := session.NewContext(ctx, s)
	require.NoError(t, cache.Set(sctx, c, "cart", []string{"issue-42"}, cache.InBackend(cache.KindSession)))
	require.True(t, c.Has(sctx, "cart", cache.InBackend(cache.KindSession)))

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	assert.False(t, c.Has(sctx, "cart", cache.InBackend(cache.KindSession)))

	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, session.ErrInvalidID)

	expired := session.NewAt(time.Now().Add(-2*time.Hour), time.Hour)
	require.ErrorIs(t, store.Save(ctx, expired), session.ErrExpired)
}
