// Package health tracks the health of the host's components (gateway,
// channel manager, behaviour runner) and aggregates them into the answer
// served at /healthz.
//
// # Health States
//
// Three states are supported:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// # Basic Usage
//
//	monitor := health.NewMonitor()
//	monitor.Update("gateway", health.FromComponentHealth("gateway", gw.Health()))
//
//	system := monitor.AggregateHealth("frontgate")
//	if system.IsUnhealthy() {
//	    // answer 503
//	}
//
// Aggregation is worst-case: any unhealthy component marks the system
// unhealthy; any degraded component (with none unhealthy) marks it degraded.
//
// # Security
//
// Error messages passed through FromComponentHealth are sanitized to strip
// URLs, file paths, IP addresses, ports and credential-shaped substrings
// before they reach /healthz responses.
//
// Status is a value type; the Monitor stores and returns copies, so
// statuses it holds are never mutated behind its back.
package health
