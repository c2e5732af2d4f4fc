// Package component defines the component model for the frontgate host:
// discovery metadata, the lifecycle contract, the round-based loading state
// machine, and the handler/behaviour registries that bind a component
// manifest to executable functions.
package component

import "time"

// Discoverable is the minimal interface every hosted component implements
// so the host can introspect and monitor it at runtime.
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus

	// DataFlow returns current data flow metrics
	DataFlow() FlowMetrics
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "gateway", "channel", "behaviour"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy         bool          `json:"healthy"`
	LastCheck       time.Time     `json:"last_check"`
	ErrorCount      int           `json:"error_count"`
	LastError       string        `json:"last_error,omitempty"`
	Uptime          time.Duration `json:"uptime"`
	EventsDelivered int64         `json:"events_delivered,omitempty"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	BytesPerSecond    float64   `json:"bytes_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
