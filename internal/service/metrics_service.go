package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-cert-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for the health endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	eventDeliveries *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
}

const metricsNamespace = "course_cert"

// NewMetricsService builds the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	latencyBuckets := []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

	m := &MetricsService{registry: registry}
	m.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.requestTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template.",
	}, []string{"method", "path", "status"})
	m.cacheLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "view_cache",
		Name:      "lookup_seconds",
		Help:      "Latency of course view cache lookups.",
		Buckets:   latencyBuckets,
	})
	m.cacheWrite = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "view_cache",
		Name:      "write_seconds",
		Help:      "Latency of course view cache writes.",
		Buckets:   latencyBuckets,
	})
	m.cacheHitRatio = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "view_cache",
		Name:      "hit_ratio",
		Help:      "Hits over lookups since start.",
	})
	m.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "view_cache",
		Name:      "hits_total",
		Help:      "Course views served from cache.",
	})
	m.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "view_cache",
		Name:      "misses_total",
		Help:      "Course views loaded from the store.",
	})
	m.dbQueryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "store",
		Name:      "query_duration_seconds",
		Help:      "Duration of store queries by statement label.",
		Buckets:   latencyBuckets,
	}, []string{"query"})
	m.eventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_total",
		Help:      "Committed course events by type.",
	}, []string{"type"})
	m.eventDeliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "event_deliveries_total",
		Help:      "Event deliveries by sink and outcome.",
	}, []string{"sink", "outcome"})

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordEvent counts a committed event.
func (m *MetricsService) RecordEvent(eventType models.EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordEventDelivery counts a sink delivery attempt.
func (m *MetricsService) RecordEventDelivery(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventDeliveries.WithLabelValues(sink, outcome).Inc()
}

// Snapshot returns aggregated metrics for the health endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
