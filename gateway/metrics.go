package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/frontgate/metric"
)

// Metrics holds Prometheus metrics for the Gateway
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	schemaViolations *prometheus.CounterVec
	assetsServed     prometheus.Counter
	bytesSent        prometheus.Counter
}

// newMetrics creates and registers Gateway metrics.
// Returns nil when no registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method and status code",
		}, []string{"method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontgate",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request handling duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"route_kind"}),

		schemaViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "gateway",
			Name:      "schema_violations_total",
			Help:      "Handler responses that failed declared-schema validation",
		}, []string{"operation"}),

		assetsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "gateway",
			Name:      "assets_served_total",
			Help:      "Static asset responses served",
		}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "gateway",
			Name:      "bytes_sent_total",
			Help:      "Total response bytes written",
		}),
	}

	// Gateways are rebuilt on every setup round; reuse collectors that a
	// previous round already registered.
	reg := registry.PrometheusRegistry()
	metrics.requestsTotal = metric.RegisterOrReuse(reg, metrics.requestsTotal)
	metrics.requestDuration = metric.RegisterOrReuse(reg, metrics.requestDuration)
	metrics.schemaViolations = metric.RegisterOrReuse(reg, metrics.schemaViolations)
	metrics.assetsServed = metric.RegisterOrReuse(reg, metrics.assetsServed)
	metrics.bytesSent = metric.RegisterOrReuse(reg, metrics.bytesSent)

	return metrics
}
