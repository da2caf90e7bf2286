package consoleapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for report delivery.
type Metrics struct {
	DeliveriesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns console API metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_console_report_deliveries_total",
			Help: "Report downloads, exports and shares by outcome.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(m.DeliveriesTotal)
	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnDeliver: func(action, outcome string) {
			m.DeliveriesTotal.WithLabelValues(action, outcome).Inc()
		},
	}
}
