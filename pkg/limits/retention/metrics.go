package retention

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks sweep activity. A nil *Metrics records nothing.
type Metrics struct {
	sweptRows prometheus.Counter
	lastSweep prometheus.Gauge
}

// NewMetrics registers the retention collectors with reg.
// A nil reg registers with a fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		sweptRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "spendcap_retention_swept_rows_total",
			Help: "Total number of ledger entries deleted by retention sweeps",
		}),
		lastSweep: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spendcap_retention_last_sweep_timestamp_seconds",
			Help: "Unix time of the last successful retention sweep",
		}),
	}
}

func (m *Metrics) recordSweep(deleted int64, at time.Time) {
	if m == nil {
		return
	}
	m.sweptRows.Add(float64(deleted))
	m.lastSweep.Set(float64(at.Unix()))
}
