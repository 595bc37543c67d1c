package middleware

import (
	"net/http"
	"strconv"
	"time"

	"mercator-hq/eventgate/pkg/proxy"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
)

// Metrics records the request count and duration per dialect and status.
// Requests that never reach a dialect handler are labeled "gateway".
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if collector == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			dialect := "gateway"
			if md := proxy.MetadataFromContext(r.Context()); md != nil && md.Dialect != "" {
				dialect = md.Dialect
			}
			collector.RecordRequest(dialect, strconv.Itoa(rw.statusCode), time.Since(start))
		})
	}
}
