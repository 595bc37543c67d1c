package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"mercator-hq/eventgate/pkg/gateway"
)

// DefaultMaxRequestBodySize bounds request bodies when no limit is
// configured (32MB, large enough for base64 images).
const DefaultMaxRequestBodySize = 32 * 1024 * 1024

// Header names read or written by the gateway.
const (
	// APIKeyHeader carries the attendee key on api-key dialects and the
	// deployment secret on upstream calls.
	APIKeyHeader = "api-key"

	// AuthorizationHeader carries bearer credentials.
	AuthorizationHeader = "Authorization"

	// PrincipalHeader carries the base64 client principal blob.
	PrincipalHeader = "x-ms-client-principal"

	// EventCodeHeader is sent by the playground client.
	EventCodeHeader = "openai-event-code"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// ReadBody reads the request body up to limit bytes. A larger body is an
// invalid request.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultMaxRequestBodySize
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, gateway.InvalidRequest("request body exceeds maximum size of %d bytes", limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, gateway.InvalidRequest("request body exceeds maximum size of %d bytes", limit)
	}
	return body, nil
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme.
func ExtractBearer(r *http.Request) string {
	authHeader := r.Header.Get(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ForwardQuery returns the inbound query without empty-valued parameters.
// Parameters with at least one non-empty value keep their non-empty values.
func ForwardQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for key, values := range q {
		for _, v := range values {
			if v != "" {
				out.Add(key, v)
			}
		}
	}
	return out
}
