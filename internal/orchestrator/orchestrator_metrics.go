package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the console orchestrator.
type Metrics struct {
	SubmitsTotal     *prometheus.CounterVec
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	DroppedSnapshots prometheus.Counter
}

// NewMetrics registers and returns orchestrator metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_console_submits_total",
			Help: "Total decision submissions by outcome.",
		}, []string{"result"}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_console_analyses_total",
			Help: "Total completed analysis calls by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardroom_console_analysis_duration_seconds",
			Help:    "Duration of analysis calls as seen by the console.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"outcome"}),
		DroppedSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_console_dropped_snapshots_total",
			Help: "Snapshots not delivered to a slow subscriber.",
		}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.DroppedSnapshots,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnSubmit: func(outcome string) {
			m.SubmitsTotal.WithLabelValues(outcome).Inc()
		},
		OnComplete: func(outcome string, seconds float64) {
			m.AnalysesTotal.WithLabelValues(outcome).Inc()
			m.AnalysisDuration.WithLabelValues(outcome).Observe(seconds)
		},
		OnDrop: func() {
			m.DroppedSnapshots.Inc()
		},
	}
}
