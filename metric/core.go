package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains host-level metrics shared by every component. Components
// register their own domain metrics against the registry directly.
type Metrics struct {
	ComponentStatus   *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec
	LifecycleRound    prometheus.Gauge
	RoundTransitions  *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	UptimeSeconds     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all host metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "frontgate",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component lifecycle state (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)",
			},
			[]string{"component"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "frontgate",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		LifecycleRound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "frontgate",
				Subsystem: "lifecycle",
				Name:      "round",
				Help:      "Current lifecycle round (0=setup, 1=healthcheck, 2=done, 3=error)",
			},
		),

		RoundTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frontgate",
				Subsystem: "lifecycle",
				Name:      "round_transitions_total",
				Help:      "Lifecycle round transitions by origin and destination",
			},
			[]string{"from", "to"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frontgate",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "frontgate",
				Subsystem: "host",
				Name:      "uptime_seconds",
				Help:      "Host uptime in seconds",
			},
		),
	}
}

// RecordComponentStatus updates a component's lifecycle state metric
func (c *Metrics) RecordComponentStatus(component string, state int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(state))
}

// RecordHealthStatus updates a component's health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordRound updates the current lifecycle round gauge
func (c *Metrics) RecordRound(round int) {
	c.LifecycleRound.Set(float64(round))
}

// RecordRoundTransition counts one lifecycle transition
func (c *Metrics) RecordRoundTransition(from, to string) {
	c.RoundTransitions.WithLabelValues(from, to).Inc()
}

// RecordError increments the error counter for a component
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordUptime updates the host uptime gauge
func (c *Metrics) RecordUptime(uptime time.Duration) {
	c.UptimeSeconds.Set(uptime.Seconds())
}
