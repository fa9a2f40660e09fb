package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gradebook-api/internal/dto"
)

// Computation labels used by ObserveComputation.
const (
	ComputationStudent = "student_averages"
	ComputationClass   = "class_report"
	ComputationStats   = "class_stats"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots.
// All methods are safe on a nil receiver.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheWrite          prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	dbQueryDuration     *prometheus.HistogramVec
	computationDuration *prometheus.HistogramVec
	studentsComputed    prometheus.Counter
	rejectedWeights     prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	computationCount     uint64
	rejectedWeightCount  uint64

	backlogMu sync.RWMutex
	backlog   func() int
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	computationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradebook_computation_seconds",
		Help:    "Duration of gradebook computations",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	}, []string{"kind"})

	studentsComputed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_students_computed_total",
		Help: "Total student averages computed",
	})

	rejectedWeights := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_rejected_weight_proposals_total",
		Help: "Unit weight proposals that did not total 100",
	})

	m := &MetricsService{}

	warmupBacklog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gradebook_stats_warmup_backlog",
		Help: "Classes waiting for a statistics warm-up",
	}, func() float64 {
		return float64(m.warmupBacklog())
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, computationDuration, studentsComputed, rejectedWeights, warmupBacklog, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	m.registry = registry
	m.handler = handler
	m.requestDuration = requestDuration
	m.requestTotal = requestTotal
	m.cacheLatency = cacheLatency
	m.cacheWrite = cacheWrite
	m.cacheHitRatio = cacheHitRatio
	m.cacheHits = cacheHits
	m.cacheMisses = cacheMisses
	m.dbQueryDuration = dbQueryDuration
	m.computationDuration = computationDuration
	m.studentsComputed = studentsComputed
	m.rejectedWeights = rejectedWeights
	return m
}

// TrackWarmupBacklog registers the source of the stats warm-up backlog.
func (m *MetricsService) TrackWarmupBacklog(pending func() int) {
	if m == nil {
		return
	}
	m.backlogMu.Lock()
	m.backlog = pending
	m.backlogMu.Unlock()
}

func (m *MetricsService) warmupBacklog() int {
	m.backlogMu.RLock()
	defer m.backlogMu.RUnlock()
	if m.backlog == nil {
		return 0
	}
	return m.backlog()
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
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
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
}

// ObserveComputation records a gradebook computation over the given number of students.
func (m *MetricsService) ObserveComputation(kind string, students int, duration time.Duration) {
	if m == nil {
		return
	}
	m.computationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.studentsComputed.Add(float64(students))
	atomic.AddUint64(&m.computationCount, 1)
}

// RecordRejectedWeights counts a unit weight proposal that failed validation.
func (m *MetricsService) RecordRejectedWeights() {
	if m == nil {
		return
	}
	m.rejectedWeights.Inc()
	atomic.AddUint64(&m.rejectedWeightCount, 1)
}

// Snapshot returns aggregated metrics suitable for diagnostics endpoints.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return dto.MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Computations:             atomic.LoadUint64(&m.computationCount),
		RejectedWeightProposals:  atomic.LoadUint64(&m.rejectedWeightCount),
		WarmupBacklog:            m.warmupBacklog(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
