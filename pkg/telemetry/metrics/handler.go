package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
//
// It exposes everything registered on the collector's registry. Scrape
// errors for individual collectors are reported without failing the whole
// scrape.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			// Enable OpenMetrics encoding (preferred over Prometheus text format)
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
			// Instrument the handler itself on the same registry
			Registry: c.registry,
		},
	)
}
