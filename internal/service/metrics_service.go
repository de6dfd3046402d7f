package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gestion-notas-api/internal/models"
)

const metricsNamespace = "gestion_notas"

// MetricsService owns the Prometheus registry and keeps running totals for the
// metrics summary endpoint. A nil *MetricsService records nothing.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	cacheOpDuration   *prometheus.HistogramVec
	cacheHitRatio     prometheus.Gauge
	statisticDuration *prometheus.HistogramVec
	gradesRecorded    *prometheus.CounterVec
	sheetsExported    *prometheus.CounterVec
	summaryWarms      *prometheus.CounterVec

	gradesRecordedCount  uint64
	sheetsExportedCount  uint64
	summaryWarmCount     uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	statisticCount       uint64
	statisticDurTotal    uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route template.",
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "statistics_cache_lookups_total",
			Help:      "Statistics cache lookups by result.",
		}, []string{"result"}),
		cacheOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "statistics_cache_operation_seconds",
			Help:      "Latency of statistics cache reads and writes.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"op"}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "statistics_cache_hit_ratio",
			Help:      "Hits over lookups since start.",
		}),
		statisticDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "statistic_compute_seconds",
			Help:      "Time spent computing grade statistics on a cache miss.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"statistic"}),
		gradesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "grades_recorded_total",
			Help:      "Grades recorded, by evaluation type.",
		}, []string{"evaluation_type"}),
		sheetsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "grade_sheets_exported_total",
			Help:      "Course grade sheets rendered, by format.",
		}, []string{"format"}),
		summaryWarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "course_summary_warms_total",
			Help:      "Background course summary recomputations, by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLookups, m.cacheOpDuration, m.cacheHitRatio,
		m.statisticDuration, m.gradesRecorded, m.sheetsExported, m.summaryWarms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace}),
	)
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

// ObserveHTTPRequest records one served request. route is the gin route
// template so ids do not explode label cardinality.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a statistics cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOpDuration.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	if total := hits + atomic.LoadUint64(&m.cacheMissCount); total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache set latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOpDuration.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveStatistic records how long computing a named statistic took.
func (m *MetricsService) ObserveStatistic(name string, duration time.Duration) {
	if m == nil {
		return
	}
	m.statisticDuration.WithLabelValues(name).Observe(duration.Seconds())
	atomic.AddUint64(&m.statisticCount, 1)
	atomic.AddUint64(&m.statisticDurTotal, uint64(duration.Nanoseconds()))
}

// RecordGrades counts n newly recorded grades of the given evaluation type.
func (m *MetricsService) RecordGrades(evaluationType models.EvaluationType, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.gradesRecorded.WithLabelValues(string(evaluationType)).Add(float64(n))
	atomic.AddUint64(&m.gradesRecordedCount, uint64(n))
}

// RecordExport counts a rendered grade sheet.
func (m *MetricsService) RecordExport(format models.ExportFormat) {
	if m == nil {
		return
	}
	m.sheetsExported.WithLabelValues(string(format)).Inc()
	atomic.AddUint64(&m.sheetsExportedCount, 1)
}

// RecordWarm counts a background summary recomputation.
func (m *MetricsService) RecordWarm(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		atomic.AddUint64(&m.summaryWarmCount, 1)
	}
	m.summaryWarms.WithLabelValues(result).Inc()
}

// Snapshot returns the running totals.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	statistics := atomic.LoadUint64(&m.statisticCount)

	snap := models.MetricsSnapshot{
		CacheHits:           hits,
		CacheMisses:         misses,
		RequestsTotal:       requests,
		StatisticsComputed:  statistics,
		GradesRecorded:      atomic.LoadUint64(&m.gradesRecordedCount),
		GradeSheetsExported: atomic.LoadUint64(&m.sheetsExportedCount),
		SummariesWarmed:     atomic.LoadUint64(&m.summaryWarmCount),
		Goroutines:          runtime.NumGoroutine(),
		GeneratedAt:         time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snap.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snap.AverageRequestDurationMs = averageMillis(atomic.LoadUint64(&m.requestDurationTotal), requests)
	}
	if statistics > 0 {
		snap.AverageStatisticDurationMs = averageMillis(atomic.LoadUint64(&m.statisticDurTotal), statistics)
	}
	return snap
}

func averageMillis(totalNanos, count uint64) float64 {
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
