package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Hierarchy engine metrics
	EngineOperationsTotal   *prometheus.CounterVec
	EngineOperationDuration *prometheus.HistogramVec

	// Node cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationErrors *prometheus.CounterVec

	// Archival metrics
	PurgeJobsScheduled prometheus.Counter
	PurgeJobsExecuted  *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EngineOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_engine_operations_total",
				Help: "Total number of hierarchy engine operations",
			},
			[]string{"kind", "operation", "status"},
		),
		EngineOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_engine_operation_duration_seconds",
				Help:    "Hierarchy engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_node_cache_hits_total",
				Help: "Total number of node cache hits",
			},
			[]string{"kind", "layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_node_cache_misses_total",
				Help: "Total number of node cache misses",
			},
			[]string{"kind"},
		),
		CacheInvalidationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_node_cache_invalidation_errors_total",
				Help: "Total number of cache invalidation failures left to TTL expiry",
			},
			[]string{"kind"},
		),
		PurgeJobsScheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_purge_jobs_scheduled_total",
				Help: "Total number of delayed hard-delete jobs registered",
			},
		),
		PurgeJobsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_purge_jobs_executed_total",
				Help: "Total number of delayed hard-delete jobs executed",
			},
			[]string{"kind", "status"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EngineOperationsTotal,
		m.EngineOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationErrors,
		m.PurgeJobsScheduled,
		m.PurgeJobsExecuted,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEngineOp records one engine operation with its outcome and duration
func (m *Metrics) ObserveEngineOp(kind, operation string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EngineOperationsTotal.WithLabelValues(kind, operation, status).Inc()
	m.EngineOperationDuration.WithLabelValues(kind, operation).Observe(time.Since(start).Seconds())
}

// RecordCacheHit counts a node cache hit in the given layer ("l1" or "l2")
func (m *Metrics) RecordCacheHit(kind, layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(kind, layer).Inc()
}

// RecordCacheMiss counts a node cache miss
func (m *Metrics) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheInvalidationError counts an invalidation left to TTL expiry
func (m *Metrics) RecordCacheInvalidationError(kind string) {
	if m == nil {
		return
	}
	m.CacheInvalidationErrors.WithLabelValues(kind).Inc()
}

// HTTPMiddleware instruments handlers with request count and latency
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
