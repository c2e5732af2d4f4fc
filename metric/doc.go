// Package metric provides Prometheus-based metrics collection and an HTTP
// server for host monitoring and observability.
//
// The package offers a centralized metrics registry managing both core host
// metrics (component status, lifecycle rounds, health) and custom
// component-specific metrics, plus an HTTP server exposing everything in
// Prometheus format.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordComponentStatus("gateway", 2)
//	coreMetrics.RecordRound(1)
//
// Components register their own collectors through the MetricsRegistrar
// interface, namespaced by component name to prevent collisions.
package metric
