// Package metrics exposes Prometheus instrumentation for the server and the
// ingestion tool. Each Metrics owns its registry so tests and multiple
// instances never collide on the global one.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricedash"

var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	storeQueries   *prometheus.CounterVec
	storeDuration  *prometheus.HistogramVec
	filtersDropped *prometheus.CounterVec
	rowsIngested   *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// New registers every collector on a fresh registry, together with the
// process and Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
		prometheus.NewGoCollector(),
	)

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency.", Buckets: defaultBuckets,
		}, []string{"route", "method"}),
		storeQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "queries_total",
			Help: "Observation store calls by locale, operation and outcome.",
		}, []string{"locale", "operation", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "query_duration_seconds",
			Help: "Observation store call latency.", Buckets: defaultBuckets,
		}, []string{"locale", "operation"}),
		filtersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "filter", Name: "dropped_total",
			Help: "Filter selections ignored because they no longer resolve.",
		}, []string{"dimension"}),
		rowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "rows_total",
			Help: "Observations written by ingestion, by locale and source kind.",
		}, []string{"locale", "source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Response cache lookups by result.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "invalidated_total",
			Help: "Cached responses dropped after an ingestion event.",
		}, []string{"locale"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.storeQueries, m.storeDuration,
		m.filtersDropped, m.rowsIngested,
		m.cacheLookups, m.cacheEvictions,
		m.rateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(locale, operation string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeQueries.WithLabelValues(locale, operation, outcome).Inc()
	m.storeDuration.WithLabelValues(locale, operation).Observe(elapsed.Seconds())
}

func (m *Metrics) FilterDropped(dimension string) {
	m.filtersDropped.WithLabelValues(dimension).Inc()
}

// RowsIngested labels by source kind ("csv", "sheets", ...) rather than the
// full source name to keep cardinality bounded.
func (m *Metrics) RowsIngested(locale, source string, n int) {
	kind, _, _ := strings.Cut(source, ":")
	m.rowsIngested.WithLabelValues(locale, kind).Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheInvalidated(locale string, n int) {
	m.cacheEvictions.WithLabelValues(locale).Add(float64(n))
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}
