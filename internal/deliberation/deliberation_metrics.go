package deliberation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// Metrics holds Prometheus metrics for the deliberation subsystem.
type Metrics struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	AgentsTotal      *prometheus.CounterVec
	LLMCallsTotal    *prometheus.CounterVec
	LLMTokensIn      prometheus.Counter
	LLMTokensOut     prometheus.Counter
	LLMDuration      *prometheus.HistogramVec
	LLMRetriesTotal  *prometheus.CounterVec
	NotifyTotal      *prometheus.CounterVec
}

// NewMetrics registers and returns deliberation metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_analyses_total",
			Help: "Total analyses answered, by source and final verdict.",
		}, []string{"source", "verdict"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardroom_analysis_duration_seconds",
			Help:    "Duration of analyses in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}, []string{"source"}),
		AgentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_agents_total",
			Help: "Council member answers by role and outcome.",
		}, []string{"role", "outcome"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_llm_calls_total",
			Help: "Total LLM provider calls by model and status.",
		}, []string{"model", "status"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardroom_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardroom_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"model"}),
		LLMRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_llm_retries_total",
			Help: "Retries after an overloaded provider, by model.",
		}, []string{"model"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_notifications_total",
			Help: "Result notifications by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.AgentsTotal,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.LLMRetriesTotal,
		m.NotifyTotal,
	)

	return m
}

// EngineHooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) EngineHooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(model string, inputTokens, outputTokens int, duration float64, err error) {
			m.LLMCallsTotal.WithLabelValues(model, status(err)).Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.WithLabelValues(model).Observe(duration)
		},
		OnAgent: func(role council.Role, outcome string) {
			m.AgentsTotal.WithLabelValues(string(role), outcome).Inc()
		},
		OnRetry: func(model string) {
			m.LLMRetriesTotal.WithLabelValues(model).Inc()
		},
	}
}

// ServiceHooks returns a ServiceHooks that increments the corresponding metrics.
func (m *Metrics) ServiceHooks() ServiceHooks {
	return ServiceHooks{
		OnAnalysis: func(source string, verdict council.Verdict, duration float64) {
			m.AnalysesTotal.WithLabelValues(source, string(verdict)).Inc()
			m.AnalysisDuration.WithLabelValues(source).Observe(duration)
		},
		OnNotify: func(err error) {
			m.NotifyTotal.WithLabelValues(status(err)).Inc()
		},
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
