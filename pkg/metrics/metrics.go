package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/resilient"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "stash"

// Collector counts cache events and remote fetch retries on its own registry.
// It implements cache.Observer.
type Collector struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	faults       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	retries      prometheus.Counter
	retryDelay   prometheus.Histogram
	sweptEntries prometheus.Counter
}

// New creates a Collector with Go and process collectors registered.
// An empty namespace uses DefaultNamespace.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,

		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "events_total",
				Help:      "Cache events by type and backend",
			},
			[]string{"event", "backend"},
		),

		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "storage_faults_total",
				Help:      "Storage faults recovered as misses or dropped writes",
			},
			[]string{"backend", "op"},
		),

		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "failures_total",
				Help:      "Retrievals that failed with no cached value, by reason",
			},
			[]string{"reason"},
		),

		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "retries_total",
				Help:      "Remote fetch retries",
			},
		),

		retryDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "retry_delay_seconds",
				Help:      "Backoff waited before a retry",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),

		sweptEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "swept_entries_total",
				Help:      "Entries removed by expiry sweeps and tag invalidation",
			},
		),
	}

	registry.MustRegister(c.events, c.faults, c.failures, c.retries, c.retryDelay, c.sweptEntries)
	return c
}

// Observe records ev.
func (c *Collector) Observe(_ context.Context, ev cache.Event) {
	backend := ev.Backend.String()
	c.events.WithLabelValues(string(ev.Type), backend).Inc()

	switch ev.Type {
	case cache.EventStorageFault:
		c.faults.WithLabelValues(backend, ev.Op).Inc()
	case cache.EventSweep, cache.EventInvalidated:
		if ev.Count > 0 {
			c.sweptEntries.Add(float64(ev.Count))
		}
	}
}

// ObserveRetry records one retry of a remote fetch. Its signature matches
// retrieve.WithOnRetry.
func (c *Collector) ObserveRetry(_ string, _ int, _ error, delay time.Duration) {
	c.retries.Inc()
	c.retryDelay.Observe(delay.Seconds())
}

// TrackMemory exports the number of entries held by the memory backend.
func (c *Collector) TrackMemory(namespace string, m *cache.Memory) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "memory_entries",
			Help:      "Entries held by the memory backend",
		},
		func() float64 { return float64(m.Len()) },
	)
	if err := c.registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFailure counts a retrieval that surfaced err to the caller.
func (c *Collector) ObserveFailure(err error) {
	if err == nil {
		return
	}
	c.failures.WithLabelValues(reasonLabel(err)).Inc()
}

// reasonLabel is timeout, exhausted or fatal, or "other" when err did not
// come from resilient.Call.
func reasonLabel(err error) string {
	if reason, ok := resilient.ReasonOf(err); ok {
		return string(reason)
	}
	return "other"
}
