package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/eventgate/pkg/proxy"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
// Unwrap lets http.ResponseController reach the Flusher of streamed
// responses.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	bytes      int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code before writing.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called if not already done.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *responseWriter) Flush() {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}

// Unwrap returns the wrapped writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging writes one line per request once the handler returns. The level
// follows the status: error for 5xx, warn for 4xx, info otherwise.
//
// Log format (JSON):
//
//	{
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/openai/deployments/gpt-4/chat/completions",
//	  "status": 200,
//	  "latency_ms": 1250,
//	  "request_id": "1f0c...",
//	  "event_id": "ev-2024",
//	  "dialect": "azure-openai",
//	  "deployment": "gpt-4",
//	  "streamed": false
//	}
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		switch {
		case rw.statusCode >= 500:
			level = slog.LevelError
		case rw.statusCode >= 400:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", rw.bytes,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if md := proxy.MetadataFromContext(r.Context()); md != nil {
			if md.EventID != "" {
				attrs = append(attrs, "event_id", md.EventID)
			}
			if md.Dialect != "" {
				attrs = append(attrs, "dialect", md.Dialect)
			}
			if md.DeploymentName != "" {
				attrs = append(attrs,
					"deployment", md.DeploymentName,
					"catalog_id", md.CatalogID,
					"streamed", md.Streamed,
					"upstream_status", md.UpstreamStatus,
				)
			}
		}

		slog.Log(r.Context(), level, "request completed", attrs...)
	})
}
