// Package metrics owns the Prometheus registry for a spendcap process.
//
// Every collector is registered on a private registry rather than the
// global default, so tests and embedded uses never collide. Components
// that define their own metrics (the limits engine, the retention sweeper)
// register through Collector.Registerer.
//
// # Endpoint
//
//	collector := metrics.NewCollector()
//	mux.Handle("/metrics", collector.Handler())
//
// # HTTP Metrics
//
//   - spendcap_http_requests_total{route, code}
//   - spendcap_http_request_duration_seconds{route}
//   - spendcap_http_requests_in_flight
//
// Route labels are the registered route pattern, never the raw URL path,
// so resource IDs cannot leak into label values.
package metrics
