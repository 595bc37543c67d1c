package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on gateway spans.
const (
	AttrRequestID  = "eventgate.request_id"
	AttrEventID    = "eventgate.event_id"
	AttrDialect    = "eventgate.dialect"
	AttrDeployment = "eventgate.deployment"
	AttrCatalogID  = "eventgate.catalog_id"
	AttrStreamed   = "eventgate.streamed"
	AttrOutcome    = "eventgate.upstream.outcome"
)

// SetRequestAttributes sets the gateway identifiers of a request.
func SetRequestAttributes(span trace.Span, requestID, eventID, dialect string) {
	attrs := make([]attribute.KeyValue, 0, 3)
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if eventID != "" {
		attrs = append(attrs, attribute.String(AttrEventID, eventID))
	}
	if dialect != "" {
		attrs = append(attrs, attribute.String(AttrDialect, dialect))
	}
	span.SetAttributes(attrs...)
}

// SetDeploymentAttributes records the resolved deployment.
func SetDeploymentAttributes(span trace.Span, deployment, catalogID string, streamed bool) {
	span.SetAttributes(
		attribute.String(AttrDeployment, deployment),
		attribute.String(AttrCatalogID, catalogID),
		attribute.Bool(AttrStreamed, streamed),
	)
}

// SetUpstreamAttributes records the upstream call result.
func SetUpstreamAttributes(span trace.Span, method, host string, status int, outcome string) {
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("server.address", host),
		attribute.String(AttrOutcome, outcome),
	)
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
}
