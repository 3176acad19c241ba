// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for the
// Folio permission service.
//
// Logging uses stdlib slog with a JSON handler:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("resource_id", id).Info("resolved")
//
// Metrics are registered against a dedicated registry and exposed on the
// health port:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ResolutionsTotal.WithLabelValues("file", "viewer").Inc()
//
// Health endpoints probe PostgreSQL and (optionally) Redis and report
// healthy/degraded/unhealthy for k8s readiness.
package observability
