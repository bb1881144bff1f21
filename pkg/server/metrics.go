package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the world server. It
// implements verbs.Stats so the dispatcher reports through it.
type Metrics struct {
	sessionsConnected *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	commandsTotal     *prometheus.CounterVec
	parseErrorsTotal  prometheus.Counter
	dispatchErrors    *prometheus.CounterVec
	casConflictsTotal prometheus.Counter
	eventsDelivered   prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for the server.
func NewMetrics() *Metrics {
	m := &Metrics{
		sessionsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "textmoor_sessions_connected",
			Help: "Number of currently connected sessions by transport.",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textmoor_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textmoor_commands_processed_total",
			Help: "Total commands dispatched since server start.",
		}, []string{"verb"}),
		parseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textmoor_parse_errors_total",
			Help: "Total inputs rejected by the parser.",
		}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textmoor_dispatch_errors_total",
			Help: "Total dispatch failures by kind.",
		}, []string{"kind"}),
		casConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textmoor_cas_conflicts_total",
			Help: "Total compare-and-set version conflicts that forced a retry cycle.",
		}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textmoor_events_delivered_total",
			Help: "Total events handed to the broadcaster.",
		}),
	}

	prometheus.MustRegister(
		m.sessionsConnected,
		m.connectionsTotal,
		m.commandsTotal,
		m.parseErrorsTotal,
		m.dispatchErrors,
		m.casConflictsTotal,
		m.eventsDelivered,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// SessionOpened records a new connection on a transport.
func (m *Metrics) SessionOpened(transport string) {
	m.connectionsTotal.WithLabelValues(transport).Inc()
	m.sessionsConnected.WithLabelValues(transport).Inc()
}

// SessionClosed records a connection ending on a transport.
func (m *Metrics) SessionClosed(transport string) {
	m.sessionsConnected.WithLabelValues(transport).Dec()
}

// ParseError records an input the parser rejected.
func (m *Metrics) ParseError() {
	m.parseErrorsTotal.Inc()
}

// CommandProcessed implements verbs.Stats.
func (m *Metrics) CommandProcessed(verb string) {
	m.commandsTotal.WithLabelValues(verb).Inc()
}

// CASConflict implements verbs.Stats.
func (m *Metrics) CASConflict() {
	m.casConflictsTotal.Inc()
}

// DispatchError implements verbs.Stats.
func (m *Metrics) DispatchError(kind string) {
	m.dispatchErrors.WithLabelValues(kind).Inc()
}

// EventsDelivered implements verbs.Stats.
func (m *Metrics) EventsDelivered(n int) {
	m.eventsDelivered.Add(float64(n))
}
