package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Histogram
	cacheWrite       prometheus.Histogram
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	analysisDuration *prometheus.HistogramVec
	analysesTotal    *prometheus.CounterVec
	suggestionsTotal *prometheus.CounterVec
	fixesApplied     *prometheus.CounterVec
	reportJobs       *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "constraint_analysis_duration_seconds",
			Help:    "Time spent analysing lessons, including snapshot loading",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constraint_analyses_total",
			Help: "Lesson analyses by teacher availability status",
		}, []string{"availability"}),
		suggestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constraint_fix_suggestions_total",
			Help: "Fix suggestions produced by kind",
		}, []string{"kind"}),
		fixesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constraint_fixes_applied_total",
			Help: "Fixes applied to the constraint store by kind",
		}, []string{"kind"}),
		reportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "constraint_audit_jobs_total",
			Help: "Constraint audit export jobs by terminal status",
		}, []string{"status"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.analysisDuration, m.analysesTotal, m.suggestionsTotal, m.fixesApplied, m.reportJobs,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
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
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
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

// ObserveAnalysis records one analysis run. scope is "lesson" or "timetable".
func (m *MetricsService) ObserveAnalysis(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordReport counts a produced report by availability status and suggestion kind.
func (m *MetricsService) RecordReport(report *models.ConstraintAnalysisReport) {
	if m == nil || report == nil {
		return
	}
	m.analysesTotal.WithLabelValues(string(report.TeacherAvailability.Status)).Inc()
	if report.Suggestion != nil {
		m.suggestionsTotal.WithLabelValues(string(report.Suggestion.Action.Kind)).Inc()
	}
}

// RecordFixApplied counts an applied fix.
func (m *MetricsService) RecordFixApplied(kind models.FixKind) {
	if m == nil {
		return
	}
	m.fixesApplied.WithLabelValues(string(kind)).Inc()
}

// RecordReportJob counts a finished or failed export job.
func (m *MetricsService) RecordReportJob(status models.ReportStatus) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(string(status)).Inc()
}
