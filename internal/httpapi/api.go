package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/fetch"
	"github.com/dmitrymomot/stash/pkg/health"
	"github.com/dmitrymomot/stash/pkg/logger"
	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/metrics"
	"github.com/dmitrymomot/stash/pkg/session"
)

const (
	defaultSessionHeader   = "X-Session-ID"
	defaultSessionLifetime = 24 * time.Hour
	maxEntryBodySize       = 1 << 20
)

// API serves the cache over HTTP.
type API struct {
	cache     *cache.Cache
	scheduler *maintenance.Scheduler
	logger    *slog.Logger

	upstream *fetch.Client
	profiles *session.Loader[json.RawMessage]
	metrics  *metrics.Collector
	checks   health.Checks

	sessionStore    session.Store
	sessionHeader   string
	sessionLifetime time.Duration
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request failures and panics.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithUpstream enables the cached proxy under /api/.
func WithUpstream(c *fetch.Client) Option {
	return func(a *API) {
		a.upstream = c
	}
}

// WithSessions resolves visitor sessions for /cache and /session routes.
// An empty header or non-positive lifetime keeps the defaults
// (X-Session-ID, 24h).
func WithSessions(store session.Store, header string, lifetime time.Duration) Option {
	return func(a *API) {
		a.sessionStore = store
		if header != "" {
			a.sessionHeader = header
		}
		if lifetime > 0 {
			a.sessionLifetime = lifetime
		}
	}
}

// WithProfiles enables GET /session/profile. It requires WithSessions.
func WithProfiles(l *session.Loader[json.RawMessage]) Option {
	return func(a *API) {
		a.profiles = l
	}
}

// WithMetrics serves m at /metrics and counts failed retrievals.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithChecks sets the readiness checks.
func WithChecks(checks health.Checks) Option {
	return func(a *API) {
		a.checks = checks
	}
}

// New creates the API over c. sched handles invalidation and sweeps.
func New(c *cache.Cache, sched *maintenance.Scheduler, opts ...Option) *API {
	a := &API{
		cache:           c,
		scheduler:       sched,
		logger:          logger.NewNope(),
		sessionHeader:   defaultSessionHeader,
		sessionLifetime: defaultSessionLifetime,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the HTTP routes.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.recoverer)

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(a.checks, health.WithLogger(a.logger)))
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}

	r.Get("/api/*", a.proxy)

	r.Group(func(r chi.Router) {
		if a.sessionStore != nil {
			r.Use(a.sessions)
		}

		r.Get("/cache/*", a.getEntry)
		r.Put("/cache/*", a.putEntry)
		r.Delete("/cache/*", a.deleteEntry)
		r.Delete("/cache", a.clear)
		r.Post("/cache/invalidate/{tag}", a.invalidate)

		r.Get("/session/profile", a.profile)
		r.Delete("/session/profile", a.forgetProfile)
	})

	r.Post("/maintenance/hidden", a.hidden)
	r.Post("/maintenance/sweep", a.sweep)

	return r
}
