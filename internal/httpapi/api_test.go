package httpapi_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/internal/config"
	"github.com/dmitrymomot/stash/internal/httpapi"
	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/fetch"
	"github.com/dmitrymomot/stash/pkg/health"
	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/metrics"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
	"github.com/dmitrymomot/stash/pkg/session"
)

type env struct {
	cache  *cache.Cache
	router http.Handler
	bus    *maintenance.LocalSignals
}

func newEnv(t *testing.T, upstream http.Handler) *env {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	m := metrics.New("test")
	c := cache.New(
		cache.WithObserver(m),
		cache.WithBackend(cache.NewPersistent(cache.NewMapKV())),
		cache.WithBackend(cache.NewSession(cache.NewMapKV())),
	)
	r := retrieve.New(c, retrieve.WithPolicy(resilient.Policy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Timeout:    50 * time.Millisecond,
	}))
	t.Cleanup(r.Wait)

	client, err := fetch.New(srv.URL, r, fetch.WithStrategy(retrieve.StrategyCacheFirst))
	require.NoError(t, err)

	bus := maintenance.NewLocalSignals()
	sched, err := maintenance.New(c, maintenance.WithSignals(bus))
	require.NoError(t, err)

	profiles := session.NewLoader(r, func(ctx context.Context, s *session.Session) (json.RawMessage, error) {
		return client.Fetch(ctx, "/api/profile?session="+s.ID)
	})

	api := httpapi.New(c, sched,
		httpapi.WithUpstream(client),
		httpapi.WithSessions(session.NewCacheStore(c), "", time.Hour),
		httpapi.WithProfiles(profiles),
		httpapi.WithMetrics(m),
		httpapi.WithChecks(health.Checks{"cache": c.Ping}),
	)
	return &env{cache: c, router: api.Router(), bus: bus}
}

func (e *env) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestProxy(t *testing.T) {
	t.Parallel()

	t.Run("caches upstream responses", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		e := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, "page=2", r.URL.RawQuery)
			_, _ = w.Write([]byte(`[{"id":1}]`))
		}))

		for range 2 {
			rec := e.do(t, http.MethodGet, "/api/articles?page=2&tag=articles", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[{"id":1}]`, rec.Body.String())
			assert.Equal(t, "cache-first", rec.Header().Get("X-Cache-Strategy"))
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		}
		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, e.cache.Has(context.Background(), fetch.Key("/api/articles?page=2")))

		rec := e.do(t, http.MethodPost, "/cache/invalidate/articles", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"tag":"articles","removed":1}`, rec.Body.String())
		assert.False(t, e.cache.Has(context.Background(), fetch.Key("/api/articles?page=2")))
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, http.NotFoundHandler())
		rec := e.do(t, http.MethodGet, "/api/articles?strategy=sometimes", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exhausted retries map to 503", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		e := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		rec := e.do(t, http.MethodGet, "/api/articles", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "exhausted", body.Error.Reason)
		assert.Contains(t, body.Error.Message, "after 2 attempt(s)")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("fatal upstream error maps to 502", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, http.NotFoundHandler())
		rec := e.do(t, http.MethodGet, "/api/missing", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "fatal", decodeError(t, rec).Error.Reason)
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))

		rec := e.do(t, http.MethodGet, "/api/slow", "")
		require.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "timeout", decodeError(t, rec).Error.Reason)
	})
}

func TestEntries(t *testing.T) {
	t.Parallel()

	e := newEnv(t, http.NotFoundHandler())

	rec := e.do(t, http.MethodPut, "/cache/fetch:/api/issues?ttl=1m&tag=issues&backend=persistent", `{"issue":42}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/cache/fetch:/api/issues?backend=persistent", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entry struct {
		Key     string          `json:"key"`
		Backend string          `json:"backend"`
		TTL     string          `json:"ttl"`
		Tags    []string        `json:"tags"`
		Value   json.RawMessage `json:"value"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, "fetch:/api/issues", entry.Key)
	assert.Equal(t, "persistent", entry.Backend)
	assert.Equal(t, "1m0s", entry.TTL)
	assert.Equal(t, []string{"issues"}, entry.Tags)
	assert.JSONEq(t, `{"issue":42}`, string(entry.Value))

	rec = e.do(t, http.MethodDelete, "/cache/fetch:/api/issues", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/cache/fetch:/api/issues?backend=persistent", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	t.Run("validation", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/cache/k", `not json`).Code)
		assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/cache/k?ttl=-1s", `1`).Code)
		assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/cache/k?backend=disk", "").Code)
		assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodDelete, "/cache", "").Code)
	})

	t.Run("clear backend", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, e.do(t, http.MethodPut, "/cache/a", `1`).Code)
		require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/cache?backend=memory", "").Code)
		assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/cache/a", "").Code)
	})
}

func TestMaintenance(t *testing.T) {
	t.Parallel()

	e := newEnv(t, http.NotFoundHandler())
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, e.cache, "k", "v"))

	rec := e.do(t, http.MethodPost, "/maintenance/hidden", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, e.cache.Has(ctx, "k"))

	rec = e.do(t, http.MethodPost, "/maintenance/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":0}`, rec.Body.String())
}

func TestSessionProfile(t *testing.T) {
	t.Parallel()

	var down atomic.Bool
	e := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"session":"` + r.URL.Query().Get("session") + `"}`))
	}))

	rec := e.do(t, http.MethodGet, "/session/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get("X-Session-ID")
	require.True(t, session.ValidID(id))
	assert.JSONEq(t, `{"session":"`+id+`"}`, rec.Body.String())

	down.Store(true)
	rec = e.do(t, http.MethodGet, "/session/profile", "", "X-Session-ID", id)
	require.Equal(t, http.StatusOK, rec.Code, "cached profile served while upstream is down")
	assert.Equal(t, id, rec.Header().Get("X-Session-ID"))
	assert.JSONEq(t, `{"session":"`+id+`"}`, rec.Body.String())

	rec = e.do(t, http.MethodDelete, "/session/profile", "", "X-Session-ID", id)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/session/profile", "", "X-Session-ID", id)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	e := newEnv(t, http.NotFoundHandler())

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health/ready", "").Code)

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodPut, "/cache/k", `1`).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/cache/k", "").Code)

	rec := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_cache_events_total")
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var hooked atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- httpapi.Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}), config.HTTPConfig{ShutdownTimeout: time.Second}, nil, func(context.Context) error {
			hooked.Store(true)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.True(t, hooked.Load())
}
