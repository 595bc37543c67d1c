package proxy

import (
	"context"
	"net/http"
	"time"
)

// RequestMetadata is filled in while a request moves through the gateway
// and read back by the logging, metrics and tracing middleware after the
// handler returns. It is owned by a single request.
type RequestMetadata struct {
	// RequestID is a unique identifier for the request.
	RequestID string

	// Dialect is the template that served the request, or the route group
	// for non-dialect endpoints ("attendee", "eventinfo", ...).
	Dialect string

	// EventID is the caller's event once authenticated.
	EventID string

	// DeploymentName is the resolved catalog deployment.
	DeploymentName string

	// CatalogID is the resolved catalog row.
	CatalogID string

	// Streamed reports whether the response was streamed.
	Streamed bool

	// UpstreamStatus is the status returned by the upstream, if called.
	UpstreamStatus int

	// UpstreamLatency is the time until upstream response headers.
	UpstreamLatency time.Duration

	// Error is the error written to the caller, if any.
	Error error

	// Method is the HTTP method.
	Method string

	// Path is the HTTP request path.
	Path string

	// RemoteAddr is the client's address.
	RemoteAddr string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

type metadataKey struct{}

// NewRequestMetadata captures the transport fields of r.
func NewRequestMetadata(r *http.Request, requestID string) *RequestMetadata {
	return &RequestMetadata{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Timestamp:  time.Now(),
	}
}

// WithMetadata returns a copy of ctx carrying md.
func WithMetadata(ctx context.Context, md *RequestMetadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// MetadataFromContext returns the request metadata, or nil outside the
// middleware chain.
func MetadataFromContext(ctx context.Context) *RequestMetadata {
	md, _ := ctx.Value(metadataKey{}).(*RequestMetadata)
	return md
}

// SetDialect records the dialect on the request metadata, if present.
func SetDialect(ctx context.Context, dialect string) {
	if md := MetadataFromContext(ctx); md != nil {
		md.Dialect = dialect
	}
}
