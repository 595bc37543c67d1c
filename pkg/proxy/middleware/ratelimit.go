package middleware

import (
	"net/http"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy"
)

// RateGate rejects callers whose daily request cap is spent with 429,
// before any catalog lookup or upstream call. It must run after
// authentication. Routes a capped caller may still reach are mounted
// outside the group that uses it.
func RateGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := gateway.FromContext(r.Context())
		if !ok || rc.IsAuthorized() {
			next.ServeHTTP(w, r)
			return
		}
		proxy.WriteError(w, r, gateway.RateLimited(rc.DailyRequestCap))
	})
}
