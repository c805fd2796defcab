// Package metric exposes Prometheus instrumentation for the engine. The
// host supplies the registerer, so embedding applications keep control of
// their metrics namespace.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	sessionsActive  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
}

// New creates and registers the engine metrics. A nil registerer returns
// nil, which disables instrumentation throughout the engine.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wirecat_sessions_active",
			Help: "Currently live sessions by protocol.",
		}, []string{"protocol"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirecat_sessions_total",
			Help: "Sessions created since start, by protocol.",
		}, []string{"protocol"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirecat_events_total",
			Help: "Events appended to session logs, by event kind.",
		}, []string{"kind"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirecat_transport_errors_total",
			Help: "Fatal transport errors by protocol.",
		}, []string{"protocol"}),
	}

	reg.MustRegister(m.sessionsActive, m.sessionsTotal, m.eventsTotal, m.transportErrors)
	return m
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted(protocol string) {
	m.sessionsTotal.WithLabelValues(protocol).Inc()
	m.sessionsActive.WithLabelValues(protocol).Inc()
}

// SessionEnded records a session reaching a terminal state.
func (m *Metrics) SessionEnded(protocol string) {
	m.sessionsActive.WithLabelValues(protocol).Dec()
}

// EventAppended records one event-log append.
func (m *Metrics) EventAppended(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

// TransportError records a fatal transport failure.
func (m *Metrics) TransportError(protocol string) {
	m.transportErrors.WithLabelValues(protocol).Inc()
}
