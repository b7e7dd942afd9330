package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	feedState     *prometheus.GaugeVec
	reconnects    *prometheus.CounterVec
	eventsApplied *prometheus.CounterVec
	actions       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		feedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "staffsync_feed_state",
			Help: "Change feed connection state (0=disconnected, 1=connecting, 2=degraded, 3=connected).",
		}, []string{"location_id"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffsync_feed_reconnects_total",
			Help: "Reconnect attempts made by the change feed client.",
		}, []string{"location_id"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffsync_events_applied_total",
			Help: "Change events seen by the reconciler by result.",
		}, []string{"entity_type", "op", "result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffsync_actions_total",
			Help: "Action gateway calls by outcome.",
		}, []string{"action", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.feedState, m.reconnects, m.eventsApplied, m.actions)
	}
	return m
}

func (m *Metrics) FeedState(locationID string, value float64) {
	if m == nil {
		return
	}
	m.feedState.WithLabelValues(locationID).Set(value)
}

func (m *Metrics) Reconnect(locationID string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(locationID).Inc()
}

func (m *Metrics) EventApplied(entityType, op, result string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(entityType, op, result).Inc()
}

func (m *Metrics) Action(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}
