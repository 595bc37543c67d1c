package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/telemetry/logging"
)

// CredentialSource extracts a credential from a request.
type CredentialSource func(r *http.Request) string

// FromAPIKeyHeader reads the api-key header.
func FromAPIKeyHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(proxy.APIKeyHeader))
}

// FromBearer reads an Authorization bearer token.
func FromBearer(r *http.Request) string {
	return proxy.ExtractBearer(r)
}

// FirstOf tries sources in order and returns the first non-empty value.
func FirstOf(sources ...CredentialSource) CredentialSource {
	return func(r *http.Request) string {
		for _, source := range sources {
			if v := source(r); v != "" {
				return v
			}
		}
		return ""
	}
}

// Middleware authenticates requests against a Resolver.
type Middleware struct {
	resolver *Resolver
}

// NewMiddleware creates middleware for resolver.
func NewMiddleware(resolver *Resolver) *Middleware {
	return &Middleware{resolver: resolver}
}

// RequireAPIKey authenticates with the api-key header.
func (m *Middleware) RequireAPIKey(next http.Handler) http.Handler {
	return m.require(FromAPIKeyHeader, next)
}

// RequireBearer authenticates with an Authorization bearer token, falling
// back to the api-key header.
func (m *Middleware) RequireBearer(next http.Handler) http.Handler {
	return m.require(FirstOf(FromBearer, FromAPIKeyHeader), next)
}

func (m *Middleware) require(source CredentialSource, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := m.resolver.Resolve(r.Context(), source(r))
		if err != nil {
			slog.WarnContext(r.Context(), "authentication failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			proxy.WriteError(w, r, err)
			return
		}

		if code := r.Header.Get(proxy.EventCodeHeader); code != "" && !strings.EqualFold(code, rc.EventCode) {
			m.resolver.metrics.RecordAuthResult("forbidden")
			proxy.WriteError(w, r, gateway.Forbidden("The event code does not match the API key."))
			return
		}

		slog.DebugContext(r.Context(), "API key authenticated",
			"event_id", rc.EventID,
			"path", r.URL.Path,
		)

		if md := proxy.MetadataFromContext(r.Context()); md != nil {
			md.EventID = rc.EventID
		}
		ctx := logging.WithEventID(gateway.NewContext(r.Context(), rc), rc.EventID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type principalKey struct{}

// RequirePrincipal authenticates the attendee self-registration routes with
// a client principal blob from the x-ms-client-principal header or, when
// that is absent, a bearer token holding the same blob.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blob := r.Header.Get(proxy.PrincipalHeader)
		if blob == "" {
			blob = proxy.ExtractBearer(r)
		}

		p, err := DecodePrincipal(blob)
		if err != nil {
			slog.WarnContext(r.Context(), "principal rejected",
				"error", err,
				"remote_addr", r.RemoteAddr,
			)
			proxy.WriteError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the principal stored by RequirePrincipal.
func PrincipalFromContext(ctx context.Context) (*gateway.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*gateway.Principal)
	return p, ok && p != nil
}

// RequireAdmin guards operator endpoints with a static bearer key.
func RequireAdmin(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := FirstOf(FromBearer, FromAPIKeyHeader)(r)
			if adminKey == "" || !constantTimeEqual(got, adminKey) {
				proxy.WriteError(w, r, gateway.Unauthenticated("Unauthorized."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
