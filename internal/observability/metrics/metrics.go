package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrialMetrics exposes counters/histograms for the trial booking flow.
type TrialMetrics struct {
	turnsTotal         *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	draftFallbacks     *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	jobsTotal          *prometheus.CounterVec
	turnLatency        *prometheus.HistogramVec
	llmLatency         *prometheus.HistogramVec
}

func NewTrialMetrics(reg prometheus.Registerer) *TrialMetrics {
	m := &TrialMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trial",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"stage", "outcome"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trial",
			Subsystem: "conversation",
			Name:      "validation_failures_total",
			Help:      "Date/time validation failures by reason",
		}, []string{"reason"}),
		draftFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trial",
			Subsystem: "conversation",
			Name:      "draft_fallbacks_total",
			Help:      "Turns answered with the fixed fallback text instead of a drafted message",
		}, []string{"action"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trial",
			Subsystem: "bookings",
			Name:      "total",
			Help:      "Booking gateway calls by status",
		}, []string{"status"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trial",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Queued conversation jobs by final status",
		}, []string{"status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trial",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a full conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trial",
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.validationFailures, m.draftFallbacks, m.bookingsTotal, m.jobsTotal, m.turnLatency, m.llmLatency)
	return m
}

func (m *TrialMetrics) ObserveTurn(stage, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *TrialMetrics) ObserveValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(reason).Inc()
}

func (m *TrialMetrics) ObserveDraftFallback(action string) {
	if m == nil {
		return
	}
	m.draftFallbacks.WithLabelValues(action).Inc()
}

func (m *TrialMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *TrialMetrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

func (m *TrialMetrics) ObserveTurnLatency(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *TrialMetrics) ObserveLLMCall(provider, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider, status).Observe(d.Seconds())
}
