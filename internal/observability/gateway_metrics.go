package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics tracks health of the chat gateway: inbound events, dropped
// duplicates and card callbacks.
type GatewayMetrics struct {
	events     *prometheus.CounterVec
	duplicates prometheus.Counter
	callbacks  *prometheus.CounterVec
	sendErrors *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway counters on reg. A nil registerer
// gets a private registry so the counters still work but are never scraped.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &GatewayMetrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beanbot",
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Inbound chat events by type",
		}, []string{"type"}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beanbot",
			Subsystem: "gateway",
			Name:      "duplicate_events_total",
			Help:      "Inbound message events dropped because they were already seen",
		}),
		callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beanbot",
			Subsystem: "gateway",
			Name:      "card_callbacks_total",
			Help:      "Card action callbacks by answer",
		}, []string{"answer"}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beanbot",
			Subsystem: "gateway",
			Name:      "send_errors_total",
			Help:      "Failed outbound API calls by operation",
		}, []string{"op"}),
	}
}

// RecordEvent increments the inbound event counter.
func (m *GatewayMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// RecordDuplicate increments the duplicate event counter.
func (m *GatewayMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordCallback increments the card callback counter.
func (m *GatewayMetrics) RecordCallback(answer string) {
	if m == nil {
		return
	}
	if answer == "" {
		answer = "unknown"
	}
	m.callbacks.WithLabelValues(answer).Inc()
}

// RecordSendError increments the outbound failure counter.
func (m *GatewayMetrics) RecordSendError(op string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(op).Inc()
}
