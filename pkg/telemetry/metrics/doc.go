// Package metrics provides Prometheus metrics for the gateway.
//
// # Metrics Categories
//
//   - Request Metrics: inbound request count and duration by dialect and status
//   - Upstream Metrics: forwarded call count and duration by dialect and outcome
//   - Cache Metrics: hits, misses and sizes of the authorization and catalog caches
//   - Usage Metrics: metered records, metering failures and token totals
//   - Auth Metrics: credential resolution results
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordRequest("azure-openai", "200", 1200*time.Millisecond)
//	collector.RecordUpstream("azure-openai", "success", 900*time.Millisecond)
//	collector.RecordCacheHit("auth")
//
//	http.Handle("/metrics", collector.Handler())
//
// Every Collector method is safe to call on a nil *Collector, so components
// can take an optional collector without guarding each call.
//
// # Cardinality
//
// Catalog ids are the only label with unbounded values. They pass through a
// CardinalityLimiter and collapse into "other" once the limit is reached.
package metrics
