package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the limits package.
//
// Resource IDs are never used as labels. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Admission checks by result
	checks *prometheus.CounterVec

	// Denials by the shortest exceeded window
	denials *prometheus.CounterVec

	// Recorded spend
	recordedSats    prometheus.Counter
	recordedEntries prometheus.Counter

	// Operation latency
	duration *prometheus.HistogramVec

	// Storage failures by operation
	storeErrors *prometheus.CounterVec
}

// NewMetrics creates the limits collectors and registers them with reg.
// A nil reg registers with a fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendcap_limits_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"result"},
		),

		denials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendcap_limits_denials_total",
				Help: "Total number of denied checks by most restrictive window",
			},
			[]string{"window"},
		),

		recordedSats: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spendcap_limits_recorded_sats_total",
				Help: "Total satoshis recorded in the spend ledger",
			},
		),

		recordedEntries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spendcap_limits_recorded_entries_total",
				Help: "Total number of spend ledger entries recorded",
			},
		),

		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spendcap_limits_operation_duration_seconds",
				Help:    "Duration of limits operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15), // 50µs to ~800ms
			},
			[]string{"operation"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendcap_limits_store_errors_total",
				Help: "Total number of storage failures by operation",
			},
			[]string{"operation"},
		),
	}
}

// RecordCheck records an admission decision.
func (m *Metrics) RecordCheck(d *Decision) {
	if m == nil || d == nil {
		return
	}
	if d.Allowed {
		m.checks.WithLabelValues("allowed").Inc()
		return
	}
	m.checks.WithLabelValues("denied").Inc()
	if len(d.Exceeded) > 0 {
		m.denials.WithLabelValues(d.Exceeded[0].String()).Inc()
	}
}

// RecordSpend records a committed ledger entry.
func (m *Metrics) RecordSpend(amountSats int64) {
	if m == nil {
		return
	}
	m.recordedSats.Add(float64(amountSats))
	m.recordedEntries.Inc()
}

// RecordStoreError records a storage failure.
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

// ObserveDuration records how long an operation took since start.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
