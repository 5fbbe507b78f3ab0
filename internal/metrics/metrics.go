// Package metrics exposes Prometheus metrics for event processing and
// credential verification. Counters are incremented by the API layer around
// gateway and verifier calls, keeping observability out of the decision
// logic itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the server.
type Metrics struct {
	EventsProcessed *prometheus.CounterVec
	Verifications   *prometheus.CounterVec
	LicensesIssued  prometheus.Counter
}

// New creates the collectors and registers them on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keymint_events_processed_total",
			Help: "Payment events processed, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keymint_verifications_total",
			Help: "Credential verification requests, by outcome.",
		}, []string{"outcome"}),
		LicensesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keymint_licenses_issued_total",
			Help: "Licenses minted from billing events or operator issuance.",
		}),
	}

	reg.MustRegister(m.EventsProcessed, m.Verifications, m.LicensesIssued)
	return m
}

// ObserveEvent records one processed event.
func (m *Metrics) ObserveEvent(eventType string, success bool) {
	m.EventsProcessed.WithLabelValues(eventType, outcome(success)).Inc()
}

// ObserveVerification records one verification decision.
func (m *Metrics) ObserveVerification(valid bool, reason string) {
	label := "valid"
	if !valid {
		label = reason
	}
	m.Verifications.WithLabelValues(label).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
