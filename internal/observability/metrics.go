package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderpipeline"

// Metrics groups the pipeline's instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	useCaseRequests *prometheus.CounterVec
	useCaseDuration *prometheus.HistogramVec
	messages        *prometheus.CounterVec
	deadLetters     prometheus.Counter
	alertFailures   prometheus.Counter
	divergences     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		useCaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usecase_requests_total",
			Help:      "Total number of use case invocations.",
		}, []string{"use_case", "outcome"}),
		useCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usecase_duration_seconds",
			Help:      "Duration of use case execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"use_case"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmation_messages_total",
			Help:      "Confirmation messages processed, by outcome.",
		}, []string{"outcome"}),
		deadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_messages_total",
			Help:      "Confirmation messages that exhausted redelivery.",
		}),
		alertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operational_alert_failures_total",
			Help:      "Best-effort operational alerts that failed to send.",
		}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_order_divergence_total",
			Help:      "Placements that decremented stock without completing, by failed step.",
		}, []string{"step"}),
	}
	reg.MustRegister(m.useCaseRequests, m.useCaseDuration, m.messages, m.deadLetters, m.alertFailures, m.divergences)
	return m
}

func (m *Metrics) ObserveUseCase(useCase, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.useCaseRequests.WithLabelValues(useCase, outcome).Inc()
	m.useCaseDuration.WithLabelValues(useCase).Observe(seconds)
}

func (m *Metrics) CountMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CountDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) CountAlertFailure() {
	if m == nil {
		return
	}
	m.alertFailures.Inc()
}

func (m *Metrics) CountDivergence(step string) {
	if m == nil {
		return
	}
	m.divergences.WithLabelValues(step).Inc()
}
