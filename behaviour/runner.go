// Package behaviour schedules recurring background tasks and feeds the
// events they produce into the channel fan-out. Each bound behaviour runs on
// its own ticker with exclusively owned cursor state; a failing tick is
// logged and retried on the next interval with the cursor unchanged.
package behaviour

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/metric"
)

// DefaultInterval is the tick interval used when a binding declares none.
const DefaultInterval = time.Second

// consecutiveFailureThreshold is the point at which repeated tick failures
// escalate from per-tick errors to a sustained-failure warning.
const consecutiveFailureThreshold = 3

// binding pairs a behaviour with its schedule and exclusively owned state.
type binding struct {
	behaviour component.Behaviour
	interval  time.Duration
	state     *component.BehaviourState

	consecutiveFailures int
}

// ConstructorConfig holds all configuration needed to construct a Runner
type ConstructorConfig struct {
	Name            string                  // Component name (empty = "behaviour-runner")
	Sink            component.EventSink     // Destination for emitted events
	MetricsRegistry *metric.MetricsRegistry // Optional Prometheus metrics registry
	Logger          *slog.Logger            // Optional logger (nil = slog.Default)
}

// Runner drives every bound behaviour on its own schedule.
type Runner struct {
	name   string
	sink   component.EventSink
	logger *slog.Logger

	bindings []*binding

	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup
	stop        chan struct{}

	eventsEmitted int64
	errorCount    int64
	lastError     string
	lastActivity  time.Time

	metrics *runnerMetrics
}

type runnerMetrics struct {
	ticksTotal    *prometheus.CounterVec
	tickFailures  *prometheus.CounterVec
	eventsEmitted *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
}

func newRunnerMetrics(registry *metric.MetricsRegistry) *runnerMetrics {
	if registry == nil {
		return nil
	}

	metrics := &runnerMetrics{
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "behaviour",
			Name:      "ticks_total",
			Help:      "Total behaviour tick invocations",
		}, []string{"behaviour"}),

		tickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "behaviour",
			Name:      "tick_failures_total",
			Help:      "Behaviour tick invocations that returned an error",
		}, []string{"behaviour"}),

		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontgate",
			Subsystem: "behaviour",
			Name:      "events_emitted_total",
			Help:      "Events emitted by behaviour ticks",
		}, []string{"behaviour"}),

		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontgate",
			Subsystem: "behaviour",
			Name:      "tick_duration_seconds",
			Help:      "Duration of behaviour tick invocations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"behaviour"}),
	}

	// Runners are rebuilt on every setup round; reuse collectors that a
	// previous round already registered.
	reg := registry.PrometheusRegistry()
	metrics.ticksTotal = metric.RegisterOrReuse(reg, metrics.ticksTotal)
	metrics.tickFailures = metric.RegisterOrReuse(reg, metrics.tickFailures)
	metrics.eventsEmitted = metric.RegisterOrReuse(reg, metrics.eventsEmitted)
	metrics.tickDuration = metric.RegisterOrReuse(reg, metrics.tickDuration)

	return metrics
}

var _ component.Discoverable = (*Runner)(nil)
var _ component.LifecycleComponent = (*Runner)(nil)

// NewRunner creates a behaviour Runner from ConstructorConfig.
func NewRunner(cfg ConstructorConfig) *Runner {
	name := cfg.Name
	if name == "" {
		name = "behaviour-runner"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		name:      name,
		sink:      cfg.Sink,
		logger:    logger.With("component", name),
		startTime: time.Now(),
		metrics:   newRunnerMetrics(cfg.MetricsRegistry),
	}
}

// Bind schedules a behaviour at the given interval. Zero interval means
// DefaultInterval. Binding after Start is an error.
func (r *Runner) Bind(b component.Behaviour, interval time.Duration) error {
	if b == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Runner", "Bind",
			"behaviour cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runner", "Bind",
			fmt.Sprintf("cannot bind %s while running", b.Name()))
	}
	for _, existing := range r.bindings {
		if existing.behaviour.Name() == b.Name() {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Runner", "Bind",
				fmt.Sprintf("behaviour %s already bound", b.Name()))
		}
	}
	r.bindings = append(r.bindings, &binding{
		behaviour: b,
		interval:  interval,
		state:     component.NewBehaviourState(),
	})
	return nil
}

// Meta returns the component metadata
func (r *Runner) Meta() component.Metadata {
	r.mu.RLock()
	count := len(r.bindings)
	r.mu.RUnlock()
	return component.Metadata{
		Name:        r.name,
		Type:        "behaviour",
		Description: fmt.Sprintf("periodic task runner driving %d behaviours", count),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (r *Runner) Health() component.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return component.HealthStatus{
		Healthy:         r.running,
		LastCheck:       time.Now(),
		ErrorCount:      int(r.errorCount),
		LastError:       r.lastError,
		Uptime:          time.Since(r.startTime),
		EventsDelivered: r.eventsEmitted,
	}
}

// DataFlow returns the current data flow metrics
func (r *Runner) DataFlow() component.FlowMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var perSecond, errorRate float64
	if uptime := time.Since(r.startTime).Seconds(); uptime > 0 {
		perSecond = float64(r.eventsEmitted) / uptime
	}
	if r.eventsEmitted > 0 {
		errorRate = float64(r.errorCount) / float64(r.eventsEmitted)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      r.lastActivity,
	}
}

// Initialize validates the Runner configuration.
func (r *Runner) Initialize() error {
	if r.sink == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Runner", "Initialize",
			"event sink cannot be nil")
	}
	return nil
}

// Start launches one scheduling goroutine per bound behaviour.
func (r *Runner) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Runner", "Start",
			"context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Runner", "Start", "context already cancelled")
	}

	r.stop = make(chan struct{})
	r.running = true
	r.startTime = time.Now()

	for _, b := range r.bindings {
		r.wg.Add(1)
		go r.runBehaviour(ctx, b)
	}

	return nil
}

// Stop halts all behaviour schedules and waits for in-flight ticks.
func (r *Runner) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Runner", "Stop",
			"behaviour ticks did not finish within timeout")
	}
}

// runBehaviour is the scheduling loop for one binding. The binding's state
// is touched only from this goroutine.
func (r *Runner) runBehaviour(ctx context.Context, b *binding) {
	defer r.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick(ctx, b)
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		}
	}
}

// tick runs one behaviour invocation and forwards its events to the sink.
// On failure the cursor is left as the behaviour last committed it, so the
// next tick retries the same read.
func (r *Runner) tick(ctx context.Context, b *binding) {
	name := b.behaviour.Name()

	start := time.Now()
	events, err := b.behaviour.Tick(ctx, b.state)
	if r.metrics != nil {
		r.metrics.ticksTotal.WithLabelValues(name).Inc()
		r.metrics.tickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		b.consecutiveFailures++
		if r.metrics != nil {
			r.metrics.tickFailures.WithLabelValues(name).Inc()
		}
		r.mu.Lock()
		r.errorCount++
		r.lastError = err.Error()
		r.mu.Unlock()

		if b.consecutiveFailures >= consecutiveFailureThreshold {
			r.logger.Warn("behaviour failing repeatedly",
				"behaviour", name,
				"consecutive_failures", b.consecutiveFailures,
				"error", err)
		} else {
			r.logger.Error("behaviour tick failed", "behaviour", name, "error", err)
		}
		return
	}
	b.consecutiveFailures = 0

	for _, event := range events {
		r.sink.Broadcast(event)
	}
	if len(events) > 0 {
		if r.metrics != nil {
			r.metrics.eventsEmitted.WithLabelValues(name).Add(float64(len(events)))
		}
		r.mu.Lock()
		r.eventsEmitted += int64(len(events))
		r.lastActivity = time.Now()
		r.mu.Unlock()
	}
}
