// Package telemetry groups the gateway's observability packages.
//
// # Components
//
//   - logging: slog setup with context attributes and credential redaction
//   - metrics: Prometheus collector on a caller-supplied registry
//   - tracing: OpenTelemetry tracer, server middleware and upstream propagation
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(&cfg.Telemetry.Logging))
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("catalog_store", health.PingCheck(st))
//
// # Redaction
//
// Attendee API keys, upstream endpoint keys, Authorization values and
// sk- style tokens never reach the log output:
//
//   - api_key=0b7c9e61-... -> api_key=***
//   - Authorization: Bearer sk-abc123 -> Bearer ***
package telemetry
