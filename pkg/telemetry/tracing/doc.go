// Package tracing provides OpenTelemetry distributed tracing for the event
// gateway.
//
// # Overview
//
// Every inbound request gets a server span from Middleware. Every forwarded
// upstream call gets a client span from the forwarder, and the W3C trace
// context of that span is injected into the upstream request headers:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// Spans are exported over OTLP gRPC. When tracing is disabled the global
// tracer provider stays the OpenTelemetry no-op provider and span creation
// costs almost nothing.
//
// # Sampling Strategies
//
//   - always: sample every trace
//   - never: sample no trace
//   - ratio: sample a fraction of traces by trace ID
//
// All samplers respect the parent span's decision.
//
// # Attributes
//
// Gateway-specific attributes use the "eventgate.*" namespace. API keys and
// endpoint secrets are never recorded on spans.
package tracing
