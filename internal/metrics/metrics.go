package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SagaMetrics counts saga phases and the compensations that could not complete.
type SagaMetrics struct {
	Phases        *prometheus.CounterVec
	PhaseLatency  *prometheus.HistogramVec
	Compensations *prometheus.CounterVec
	Gaps          *prometheus.CounterVec
}

// NewSagaMetrics registers the saga collectors on reg.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	phases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchase",
		Subsystem: "saga",
		Name:      "phases_total",
		Help:      "Saga phases run, by phase and resulting state.",
	}, []string{"phase", "state"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "purchase",
		Subsystem: "saga",
		Name:      "phase_duration_ms",
		Help:      "Saga phase latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"phase"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchase",
		Subsystem: "saga",
		Name:      "compensations_total",
		Help:      "Compensating actions attempted, by step and outcome.",
	}, []string{"step", "outcome"})
	gaps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchase",
		Subsystem: "saga",
		Name:      "consistency_gaps_total",
		Help:      "Compensations that failed and need manual reconciliation.",
	}, []string{"step"})

	reg.MustRegister(phases, latency, compensations, gaps)
	return &SagaMetrics{Phases: phases, PhaseLatency: latency, Compensations: compensations, Gaps: gaps}
}

// ObservePhase records a finished phase.
func (m *SagaMetrics) ObservePhase(phase, state string, ms float64) {
	m.Phases.WithLabelValues(phase, state).Inc()
	m.PhaseLatency.WithLabelValues(phase).Observe(ms)
}

// ObserveCompensation records a compensating action; failures also count as gaps.
func (m *SagaMetrics) ObserveCompensation(step string, err error) {
	if err != nil {
		m.Compensations.WithLabelValues(step, "failed").Inc()
		m.Gaps.WithLabelValues(step).Inc()
		return
	}
	m.Compensations.WithLabelValues(step, "ok").Inc()
}

// ServerMetrics counts HTTP requests.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchase",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "purchase",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
