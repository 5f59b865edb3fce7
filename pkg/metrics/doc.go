// Package metrics exports cache health as Prometheus metrics.
//
// A [Collector] is a cache.Observer: pass it to cache.WithObserver (usually
// combined with cache.LogObserver through cache.MultiObserver) and every
// hit, miss, storage fault, revalidation and sweep is counted. Retries are
// counted through retrieve.WithOnRetry(collector.ObserveRetry).
//
//	m := metrics.New("stash")
//	c := cache.New(cache.WithObserver(cache.MultiObserver(m, cache.LogObserver(log))))
//	r := retrieve.New(c, retrieve.WithOnRetry(m.ObserveRetry))
//	router.Handle("/metrics", m.Handler())
//
// Each Collector owns its registry, so tests and multiple instances do not
// collide on the global default registry.
package metrics
