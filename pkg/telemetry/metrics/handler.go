package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxConcurrentScrapes bounds parallel /metrics requests.
const maxConcurrentScrapes = 4

// Handler serves the collector's registry in the Prometheus exposition
// format. The server mounts it at MetricsConfig.Path.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxConcurrentScrapes,
		ErrorLog:            scrapeLogger{slog.Default().With("component", "metrics")},
	})
}

// scrapeLogger adapts slog to promhttp's Println interface.
type scrapeLogger struct {
	logger *slog.Logger
}

func (l scrapeLogger) Println(v ...any) {
	l.logger.Warn("metrics scrape error", "detail", fmt.Sprint(v...))
}
