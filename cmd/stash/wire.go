package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/stash/internal/config"
	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/db"
	"github.com/dmitrymomot/stash/pkg/fetch"
	"github.com/dmitrymomot/stash/pkg/health"
	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/metrics"
	"github.com/dmitrymomot/stash/pkg/redis"
	"github.com/dmitrymomot/stash/pkg/retrieve"
	"github.com/dmitrymomot/stash/pkg/session"
)

// stack is the wired service. closers run in reverse order of creation.
type stack struct {
	cache     *cache.Cache
	retriever *retrieve.Retriever
	scheduler *maintenance.Scheduler
	metrics   *metrics.Collector
	upstream  *fetch.Client
	profiles  *session.Loader[json.RawMessage]
	sessions  session.Store
	checks    health.Checks

	closers []func(context.Context) error
}

// build connects to the configured stores and assembles the cache layers.
// On error everything opened so far is closed.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *stack, err error) {
	s := &stack{checks: health.Checks{}}
	defer func() {
		if err != nil {
			_ = s.close(context.WithoutCancel(ctx))
		}
	}()

	var rdb goredis.UniversalClient
	if cfg.Redis.URL != "" {
		rdb, err = redis.Open(ctx, cfg.Redis.URL, cfg.Redis.Options()...)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, redis.Shutdown(rdb))
		s.checks["redis"] = redis.Healthcheck(rdb)
	}

	var pool *pgxpool.Pool
	if cfg.Cache.Persistent == config.DriverPostgres {
		pool, err = db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Shutdown(pool))
		s.checks["postgres"] = db.Healthcheck(pool)

		if err := db.MigrateCache(ctx, pool, cfg.Database.MigrationsTable, log); err != nil {
			return nil, err
		}
	}

	kind, err := cache.ParseKind(cfg.Cache.DefaultBackend)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	opts := []cache.Option{
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithDefaultBackend(kind),
		cache.WithCompressThreshold(cfg.Cache.CompressThreshold),
		cache.WithObserver(cache.MultiObserver(cache.LogObserver(log), observer(s.metrics))),
	}
	if cfg.Cache.MemoryMaxEntries > 0 {
		opts = append(opts, cache.WithMemoryOptions(cache.WithMaxEntries(cfg.Cache.MemoryMaxEntries)))
	}

	persistent, err := persistentKV(cfg, rdb, pool)
	if err != nil {
		return nil, err
	}
	if persistent != nil {
		opts = append(opts, cache.WithBackend(cache.NewPersistent(persistent)))
	}

	sessions, err := sessionKV(cfg, rdb)
	if err != nil {
		return nil, err
	}
	if sessions != nil {
		opts = append(opts, cache.WithBackend(cache.NewSession(sessions)))
	}

	s.cache = cache.New(opts...)
	s.checks["cache"] = s.cache.Ping

	retrieveOpts := []retrieve.Option{
		retrieve.WithPolicy(cfg.Retry),
		retrieve.WithLogger(log),
	}
	if s.metrics != nil {
		retrieveOpts = append(retrieveOpts, retrieve.WithOnRetry(s.metrics.ObserveRetry))
		if b, ok := s.cache.Backend(cache.KindMemory); ok {
			mem, _ := b.(*cache.Memory)
			if err := s.metrics.TrackMemory(cfg.Metrics.Namespace, mem); err != nil {
				return nil, err
			}
		}
	}
	s.retriever = retrieve.New(s.cache, retrieveOpts...)

	schedOpts := []maintenance.Option{
		maintenance.WithMemoryClearInterval(cfg.Maintenance.MemoryClearInterval),
		maintenance.WithExpirySweepInterval(cfg.Maintenance.ExpirySweepInterval),
		maintenance.WithMemoryClearSchedule(cfg.Maintenance.MemoryClearSchedule),
		maintenance.WithExpirySweepSchedule(cfg.Maintenance.ExpirySweepSchedule),
		maintenance.WithLogger(log),
	}
	if rdb != nil && cfg.Maintenance.Signals {
		signals := maintenance.NewRedisSignals(rdb, cfg.Maintenance.Channel)
		signals.OnInvalidPayload(func(payload string, err error) {
			log.Warn("invalid cache signal", slog.String("payload", payload), slog.Any("error", err))
		})
		schedOpts = append(schedOpts, maintenance.WithSignals(signals))
	}
	s.scheduler, err = maintenance.New(s.cache, schedOpts...)
	if err != nil {
		return nil, err
	}

	if persistent != nil {
		s.sessions = session.NewCacheStore(s.cache)
	}

	if cfg.Upstream.BaseURL != "" {
		strategy, err := retrieve.ParseStrategy(cfg.Upstream.Strategy)
		if err != nil {
			return nil, err
		}
		s.upstream, err = fetch.New(cfg.Upstream.BaseURL, s.retriever,
			fetch.WithStrategy(strategy),
			fetch.WithTTL(cfg.Upstream.TTL),
		)
		if err != nil {
			return nil, err
		}

		if sessions != nil && cfg.Upstream.ProfilePath != "" {
			upstream, profilePath := s.upstream, cfg.Upstream.ProfilePath
			s.profiles = session.NewLoader(s.retriever,
				func(ctx context.Context, sess *session.Session) (json.RawMessage, error) {
					return upstream.Fetch(ctx, profilePath+"?session="+url.QueryEscape(sess.ID))
				},
				session.WithProfileTTL(cfg.Session.ProfileTTL),
			)
		}
	}

	return s, nil
}

func persistentKV(cfg config.Config, rdb goredis.UniversalClient, pool *pgxpool.Pool) (cache.KV, error) {
	switch cfg.Cache.Persistent {
	case config.DriverNone:
		return nil, nil
	case config.DriverMap:
		return cache.NewMapKV(), nil
	case config.DriverRedis:
		return cache.NewRedisKV(rdb, cache.WithPrefix(cfg.Cache.Namespace)), nil
	case config.DriverPostgres:
		return cache.NewPostgresKV(pool), nil
	case config.DriverS3:
		return cache.NewS3KV(cfg.S3)
	}
	return nil, fmt.Errorf("unknown persistent store %q", cfg.Cache.Persistent)
}

func sessionKV(cfg config.Config, rdb goredis.UniversalClient) (cache.KV, error) {
	switch cfg.Cache.Session {
	case config.DriverNone:
		return nil, nil
	case config.DriverMap:
		return cache.NewMapKV(), nil
	case config.DriverRedis:
		return cache.NewRedisKV(rdb, cache.WithPrefix(cfg.Cache.Namespace)), nil
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.Cache.Session)
}

func observer(m *metrics.Collector) cache.Observer {
	if m == nil {
		return nil
	}
	return m
}

// close runs the closers in reverse order.
func (s *stack) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
