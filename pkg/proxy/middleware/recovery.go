package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/proxy"
)

// Recovery converts a handler panic into the uniform 500 body. The stack is
// logged and never sent to the client. http.ErrAbortHandler is re-panicked
// so the server can abort the connection as intended.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"panic", fmt.Sprint(rec),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			proxy.WriteError(w, r, gateway.Internal(fmt.Errorf("panic: %v", rec)))
		}()

		next.ServeHTTP(w, r)
	})
}
