package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the process registry and the HTTP request metrics.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewCollector creates a registry with the Go runtime and process
// collectors plus the HTTP request metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendcap_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spendcap_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"route"},
		),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spendcap_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer is where other components register their collectors.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

// RecordRequest records a completed HTTP request.
func (c *Collector) RecordRequest(route string, code int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.duration.WithLabelValues(route).Observe(duration.Seconds())
}

// RequestStarted increments the in-flight gauge and returns the func that
// decrements it.
func (c *Collector) RequestStarted() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}
