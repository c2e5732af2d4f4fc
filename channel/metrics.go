package channel

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/frontgate/metric"
)

// Metrics holds Prometheus metrics for the channel Manager
type Metrics struct {
	sessionsConnected  prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	eventsBroadcast    *prometheus.CounterVec
	eventsDropped      prometheus.Counter
	bytesSent          prometheus.Counter
	handlerErrors      *prometheus.CounterVec
	ingestReceived     *prometheus.CounterVec
}

// newMetrics creates and registers Manager metrics.
// Returns nil when no registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		sessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "sessions_connected",
			Help:      "Number of currently connected WebSocket sessions",
		}),

		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "session_connections_total",
			Help:      "Total WebSocket sessions accepted (including disconnected)",
		}),

		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "session_disconnections_total",
			Help:      "Total WebSocket session disconnections",
		}, []string{"disconnect_reason"}),

		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "events_broadcast_total",
			Help:      "Total events broadcast to sessions",
		}, []string{"event_type"}),

		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a session send queue overflowed",
		}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to WebSocket sessions",
		}),

		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "handler_errors_total",
			Help:      "Errors returned by inbound message handlers",
		}, []string{"message_type"}),

		ingestReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "channel",
			Name:      "ingest_received_total",
			Help:      "Messages received from the external ingest subject",
		}, []string{"subject"}),
	}

	// Managers are rebuilt on every setup round; reuse collectors that a
	// previous round already registered.
	reg := registry.PrometheusRegistry()
	metrics.sessionsConnected = metric.RegisterOrReuse(reg, metrics.sessionsConnected)
	metrics.connectionTotal = metric.RegisterOrReuse(reg, metrics.connectionTotal)
	metrics.disconnectionTotal = metric.RegisterOrReuse(reg, metrics.disconnectionTotal)
	metrics.eventsBroadcast = metric.RegisterOrReuse(reg, metrics.eventsBroadcast)
	metrics.eventsDropped = metric.RegisterOrReuse(reg, metrics.eventsDropped)
	metrics.bytesSent = metric.RegisterOrReuse(reg, metrics.bytesSent)
	metrics.handlerErrors = metric.RegisterOrReuse(reg, metrics.handlerErrors)
	metrics.ingestReceived = metric.RegisterOrReuse(reg, metrics.ingestReceived)

	return metrics
}
