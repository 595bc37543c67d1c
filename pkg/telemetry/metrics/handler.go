package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry, with scrape counters
// (promhttp_metric_handler_requests_total) registered on it.
// Gathering errors are logged and the remaining series still served.
func (c *Collector) Handler() http.Handler {
	logger := slog.Default().With("component", "metrics")
	return promhttp.InstrumentMetricHandler(c.registry, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}))
}
