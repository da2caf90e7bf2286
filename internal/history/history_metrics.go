package history

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the history index.
type Metrics struct {
	RefreshesTotal *prometheus.CounterVec
	Entries        prometheus.Gauge
}

// NewMetrics registers and returns history metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_console_history_refreshes_total",
			Help: "History refreshes by outcome.",
		}, []string{"outcome"}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boardroom_console_history_entries",
			Help: "Entries held after the last successful refresh.",
		}),
	}
	reg.MustRegister(m.RefreshesTotal, m.Entries)
	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnRefresh: func(outcome string, entries int) {
			m.RefreshesTotal.WithLabelValues(outcome).Inc()
			if entries >= 0 {
				m.Entries.Set(float64(entries))
			}
		},
	}
}
