package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/fetch"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
)

type article struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

var fastPolicy = resilient.Policy{
	MaxRetries: 2,
	BaseDelay:  time.Millisecond,
	MaxDelay:   5 * time.Millisecond,
	Timeout:    time.Second,
}

func newClient(t *testing.T, h http.Handler, opts ...fetch.Option) (*fetch.Client, *cache.Cache) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := cache.New()
	r := retrieve.New(c, retrieve.WithPolicy(fastPolicy))
	t.Cleanup(r.Wait)

	client, err := fetch.New(srv.URL, r, opts...)
	require.NoError(t, err)
	return client, c
}

func TestGetJSON_CachesUnderFetchKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/articles", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`[{"id":1,"title":"On Caching"}]`))
	}), fetch.WithStrategy(retrieve.StrategyCacheFirst), fetch.WithHeader("X-Api-Key", "secret"))

	ctx := context.Background()
	for range 3 {
		got, err := fetch.GetJSON[[]article](ctx, client, "/api/articles")
		require.NoError(t, err)
		require.Equal(t, []article{{ID: 1, Title: "On Caching"}}, got)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Has(ctx, fetch.Key("/api/articles")))
	assert.Equal(t, "fetch:/api/articles", fetch.Key("/api/articles"))
}

func TestGetJSON_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"title":"ok"}`))
	}), fetch.WithStrategy(retrieve.StrategyNetworkFirst))

	got, err := fetch.GetJSON[article](context.Background(), client, "/api/articles/7")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_FatalStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}), fetch.WithStrategy(retrieve.StrategyCacheFirst))

	_, err := fetch.GetJSON[article](context.Background(), client, "/api/articles/404")
	require.ErrorIs(t, err, resilient.ErrFatal)

	var statusErr *resilient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_NetworkFirstServesCachedOnOutage(t *testing.T) {
	t.Parallel()

	var down atomic.Bool
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"title":"fresh"}`))
	}), fetch.WithStrategy(retrieve.StrategyNetworkFirst), fetch.WithTTL(time.Hour))

	ctx := context.Background()
	_, err := fetch.GetJSON[article](ctx, client, "/api/articles/1")
	require.NoError(t, err)

	down.Store(true)
	got, err := fetch.GetJSON[article](ctx, client, "/api/articles/1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Title)
}

func TestRaw_Validation(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}), fetch.WithMaxBodySize(64))

	ctx := context.Background()

	_, err := client.Raw(ctx, "api/relative", retrieve.StrategyCacheFirst)
	require.ErrorIs(t, err, fetch.ErrInvalidPath)

	_, err = client.Raw(ctx, "/api/bad", retrieve.StrategyCacheFirst)
	require.ErrorIs(t, err, fetch.ErrInvalidResponse)
	require.ErrorIs(t, err, resilient.ErrFatal)
}

func TestRaw_BodyTooLarge(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]`))
	}), fetch.WithMaxBodySize(8))

	_, err := client.Raw(context.Background(), "/api/big", retrieve.StrategyCacheFirst)
	require.True(t, errors.Is(err, fetch.ErrBodyTooLarge))
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := fetch.New("not a url", retrieve.New(cache.New()))
	require.ErrorIs(t, err, fetch.ErrInvalidBaseURL)
}
