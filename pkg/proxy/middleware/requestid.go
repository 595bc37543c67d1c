package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/telemetry/logging"
)

// maxRequestIDLength bounds a client supplied X-Request-ID.
const maxRequestIDLength = 128

// RequestID assigns every request an ID and the RequestMetadata that later
// middleware read back. A client supplied X-Request-ID is kept when it is
// short enough to log safely.
//
// The request ID is:
//   - Stored on the request metadata and the logging context
//   - Echoed in the X-Request-ID response header
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(proxy.RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		md := proxy.NewRequestMetadata(r, requestID)
		ctx := proxy.WithMetadata(r.Context(), md)
		ctx = logging.WithRequestID(ctx, requestID)

		w.Header().Set(proxy.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if md := proxy.MetadataFromContext(ctx); md != nil {
		return md.RequestID
	}
	return ""
}
