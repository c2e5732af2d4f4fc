package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}
	return names
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-component", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()
	assert.True(t, gatheredNames(t, registry)["test_counter"],
		"counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterGaugeAndHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, registry.RegisterGauge("test-component", "test_gauge", gauge))
	gauge.Set(42.0)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	})
	require.NoError(t, registry.RegisterHistogram("test-component", "test_histogram", histogram))
	histogram.Observe(1.5)

	names := gatheredNames(t, registry)
	assert.True(t, names["test_gauge"])
	assert.True(t, names["test_histogram"])
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter", // Same help to avoid Prometheus validation error
	})

	require.NoError(t, registry.RegisterCounter("component1", "duplicate_counter", counter1))

	err := registry.RegisterCounter("component2", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestRegisterOrReuse(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reused_counter",
		Help: "A counter registered twice",
	})
	second := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reused_counter",
		Help: "A counter registered twice",
	})

	got := RegisterOrReuse(registry, first)
	assert.Same(t, first, got)

	// Re-registering an identical collector hands back the original so
	// rebuilt components keep counting into the same series.
	got = RegisterOrReuse(registry, second)
	assert.Same(t, first, got)

	got.Inc()
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, float64(1), families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestRegisterOrReuse_Vectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	makeVec := func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reused_vec",
			Help: "A counter vector registered twice",
		}, []string{"label"})
	}

	first := RegisterOrReuse(registry, makeVec())
	second := RegisterOrReuse(registry, makeVec())
	assert.Same(t, first, second)
}

func TestMetricsRegistry_UnregisterMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unregister_counter",
		Help: "A counter to unregister",
	})
	require.NoError(t, registry.RegisterCounter("test-component", "unregister_counter", counter))
	require.True(t, gatheredNames(t, registry)["unregister_counter"])

	assert.True(t, registry.Unregister("test-component", "unregister_counter"))
	assert.False(t, gatheredNames(t, registry)["unregister_counter"])
	assert.False(t, registry.Unregister("test-component", "unregister_counter"))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})

			err := registry.RegisterCounter("concurrent-component",
				fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	counterCount := 0
	for name := range gatheredNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			counterCount++
		}
	}
	assert.Equal(t, numGoroutines, counterCount,
		"all concurrent counters should be registered")
}

func TestMetricsRegistrar_Interface(t *testing.T) {
	registry := NewMetricsRegistry()

	var registrar MetricsRegistrar = registry
	assert.NotNil(t, registrar)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interface_counter",
		Help: "Counter registered through interface",
	})
	require.NoError(t, registrar.RegisterCounter("interface-component", "interface_counter", counter))
}

func TestMetricsRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewMetricsRegistry()

	// Vector metrics don't appear in Gather() until they have at least one
	// value set, so record through the core metrics first.
	coreMetrics := registry.CoreMetrics()
	coreMetrics.RecordComponentStatus("gateway", 2)
	coreMetrics.RecordHealthStatus("gateway", true)
	coreMetrics.RecordRound(1)
	coreMetrics.RecordRoundTransition("setup", "healthcheck")
	coreMetrics.RecordError("gateway", "bind")
	coreMetrics.RecordUptime(90 * time.Second)

	names := gatheredNames(t, registry)
	expectedCoreMetrics := []string{
		"frontgate_component_status",
		"frontgate_health_status",
		"frontgate_lifecycle_round",
		"frontgate_lifecycle_round_transitions_total",
		"frontgate_errors_total",
		"frontgate_host_uptime_seconds",
	}
	for _, expected := range expectedCoreMetrics {
		assert.True(t, names[expected], "core metric %s should be initialized", expected)
	}
}

func TestMetricsRegistry_GetCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	coreMetrics := registry.CoreMetrics()
	require.NotNil(t, coreMetrics)

	assert.NotNil(t, coreMetrics.ComponentStatus)
	assert.NotNil(t, coreMetrics.HealthCheckStatus)
	assert.NotNil(t, coreMetrics.LifecycleRound)
	assert.NotNil(t, coreMetrics.RoundTransitions)
	assert.NotNil(t, coreMetrics.ErrorsTotal)
	assert.NotNil(t, coreMetrics.UptimeSeconds)
}
