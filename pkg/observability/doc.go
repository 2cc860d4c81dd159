// Package observability provides structured logging, Prometheus metrics,
// health probes, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Loggers emit JSON via slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("kind", "role").Info("engine started")
//
// Request identity travels in the context; FromContext returns a logger
// pre-tagged with the request and actor ids.
//
// # Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveEngineOp("role", "FindByID", err, start)
//
// # Health
//
// NewHealthChecker exposes Liveness and Readiness handlers. A failed
// database ping fails readiness; a failed Redis ping only degrades it.
package observability
