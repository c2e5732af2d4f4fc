// Package service wires the component host together: it loads a component,
// constructs the gateway, channel manager, and behaviour runner, and drives
// the loading state machine from Setup through Healthcheck to the serving
// round, recovering through the error round on failures.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	natspkg "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/c360/frontgate/behaviour"
	"github.com/c360/frontgate/channel"
	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/config"
	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/gateway"
	"github.com/c360/frontgate/health"
	"github.com/c360/frontgate/manifest"
	"github.com/c360/frontgate/metric"
	"github.com/c360/frontgate/natsclient"
	"github.com/c360/frontgate/pkg/retry"
)

// errorRetryDelay is how long the host waits in the error round before
// retrying from Setup.
const errorRetryDelay = 5 * time.Second

// uptimeInterval is how often the host refreshes the uptime gauge while
// serving.
const uptimeInterval = 15 * time.Second

// ConstructorConfig holds all configuration needed to construct a Host
type ConstructorConfig struct {
	Config     *config.HostConfig           // Host configuration (required)
	Handlers   *component.HandlerRegistry   // Message handlers (nil = empty registry)
	Behaviours *component.BehaviourRegistry // Behaviour factories (nil = built-ins only)
	Logger     *slog.Logger                 // Optional logger (nil = slog.Default)
}

// Host loads one frontend component and serves it. It owns the loading state
// machine and the lifecycle of every component underneath it.
type Host struct {
	cfg        *config.HostConfig
	handlers   *component.HandlerRegistry
	behaviours *component.BehaviourRegistry
	logger     *slog.Logger

	lifecycle *component.Lifecycle
	registry  *metric.MetricsRegistry
	monitor   *health.Monitor

	manifest *manifest.Manifest
	gateway  *gateway.Gateway
	channel  *channel.Manager
	runner   *behaviour.Runner
	nats     *natsclient.Client
	eventLog *component.Logger

	metricsServer *metric.Server

	retryDelay time.Duration
	startTime  time.Time
	mu         sync.RWMutex
}

// NewHost creates a Host from ConstructorConfig. The configuration is
// validated here; manifest loading is deferred to the setup round.
func NewHost(cfg ConstructorConfig) (*Host, error) {
	if cfg.Config == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Host", "NewHost",
			"host configuration cannot be nil")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Host", "NewHost", "configuration validation")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entry := component.RoundSetup
	if cfg.Config.EntryRound == "healthcheck" {
		entry = component.RoundHealthcheck
	}
	lifecycle, err := component.NewLifecycle(entry)
	if err != nil {
		return nil, err
	}

	handlers := cfg.Handlers
	if handlers == nil {
		handlers = component.NewHandlerRegistry()
	}
	behaviours := cfg.Behaviours
	if behaviours == nil {
		behaviours = component.NewBehaviourRegistry()
	}
	if !behaviourRegistered(behaviours, "log_tail") {
		if regErr := behaviours.Register("log_tail", behaviour.NewLogTail); regErr != nil {
			return nil, regErr
		}
	}

	h := &Host{
		cfg:        cfg.Config,
		handlers:   handlers,
		behaviours: behaviours,
		logger:     logger.With("component", "host"),
		lifecycle:  lifecycle,
		monitor:    health.NewMonitor(),
		retryDelay: errorRetryDelay,
	}

	if cfg.Config.Metrics.Enabled {
		h.registry = metric.NewMetricsRegistry()
		h.metricsServer = metric.NewServer(
			cfg.Config.Metrics.Port, cfg.Config.Metrics.Path, h.registry)
		h.metricsServer.SetHealthHandler(http.HandlerFunc(h.serveHealthz))
	}

	return h, nil
}

// streamLog returns the channel-backed logger, nil before setup completes.
func (h *Host) streamLog() *component.Logger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.eventLog
}

// behaviourRegistered reports whether a factory is already bound to name.
func behaviourRegistered(r *component.BehaviourRegistry, name string) bool {
	for _, n := range r.List() {
		if n == name {
			return true
		}
	}
	return false
}

// Handlers returns the handler registry so embedding programs can bind
// message handlers before Run.
func (h *Host) Handlers() *component.HandlerRegistry {
	return h.handlers
}

// Behaviours returns the behaviour factory registry.
func (h *Host) Behaviours() *component.BehaviourRegistry {
	return h.behaviours
}

// Round returns the current loading round.
func (h *Host) Round() component.Round {
	return h.lifecycle.Round()
}

// Addr returns the gateway listen address once the host reached the
// healthcheck round.
func (h *Host) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.gateway == nil {
		return ""
	}
	return h.gateway.Addr()
}

// Run drives the loading state machine until the context is cancelled. It
// returns nil on a clean shutdown and the terminal error when the host
// cannot make progress.
func (h *Host) Run(ctx context.Context) error {
	h.startTime = time.Now()

	group, groupCtx := errgroup.WithContext(ctx)
	if h.metricsServer != nil {
		group.Go(func() error {
			if err := h.metricsServer.Start(); err != nil {
				h.logger.Error("metrics server exited", "error", err)
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			return h.metricsServer.Stop()
		})
	}
	group.Go(func() error {
		return h.loop(groupCtx)
	})

	err := group.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop is the round-by-round state machine driver.
func (h *Host) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			h.shutdown()
			return err
		}

		round := h.lifecycle.Round()
		h.recordRound(round)

		switch round {
		case component.RoundSetup:
			h.fire(h.setup(ctx))

		case component.RoundHealthcheck:
			h.fire(h.healthcheck(ctx))

		case component.RoundDone:
			h.logger.Info("component serving",
				"component", h.componentName(), "addr", h.Addr())
			if log := h.streamLog(); log != nil {
				log.InfoContext(ctx, "component serving")
			}
			h.serve(ctx)
			h.shutdown()
			return ctx.Err()

		case component.RoundError:
			h.logger.Error("component load failed, retrying",
				"retry_in", h.retryDelay.String())
			h.shutdown()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.retryDelay):
			}
			h.fire(nil)

		default:
			return errors.Wrap(
				fmt.Errorf("unexpected round %s", round),
				"Host", "Run", "state machine")
		}
	}
}

// fire advances the state machine, recording the transition.
func (h *Host) fire(stepErr error) {
	from := h.lifecycle.Round()

	trigger := component.TriggerDone
	if stepErr != nil {
		trigger = component.TriggerError
		h.logger.Error("round failed", "round", from.String(), "error", stepErr)
		if h.registry != nil {
			h.registry.CoreMetrics().RecordError("host", errors.Classify(stepErr).String())
		}
	}

	to, err := h.lifecycle.Fire(trigger)
	if err != nil {
		h.logger.Error("invalid transition", "round", from.String(),
			"trigger", trigger.String(), "error", err)
		return
	}
	if h.registry != nil {
		h.registry.CoreMetrics().RecordRoundTransition(from.String(), to.String())
	}
}

func (h *Host) recordRound(round component.Round) {
	if h.registry != nil {
		h.registry.CoreMetrics().RecordRound(int(round))
	}
}

// setup loads the manifest, builds every component, and binds handlers and
// behaviours. Nothing starts here: listeners bind in the healthcheck round.
func (h *Host) setup(ctx context.Context) error {
	m, spec, err := manifest.Load(h.cfg.ManifestPath)
	if err != nil {
		return err
	}
	h.logger.Info("manifest loaded",
		"component", m.Name, "version", m.Version, "operations", len(spec.Operations()))

	assets, err := gateway.NewAssetServer(m.ResolveFrontendDir())
	if err != nil {
		return err
	}

	for _, binding := range m.Handlers {
		if _, ok := h.handlers.Lookup(binding.Identifier); !ok {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Host", "setup",
				fmt.Sprintf("manifest declares handler %q but none is registered",
					binding.Identifier))
		}
	}
	if err := h.registerAgentInfo(spec); err != nil {
		return err
	}

	if h.cfg.NATS.URL != "" {
		client, clientErr := natsclient.New(h.cfg.NATS.URL,
			natsclient.WithName("frontgate"),
			natsclient.WithLogger(h.logger))
		if clientErr != nil {
			return clientErr
		}
		if connErr := client.Connect(ctx); connErr != nil {
			return connErr
		}
		h.mu.Lock()
		h.nats = client
		h.mu.Unlock()
	}

	ch := channel.NewManager(channel.ConstructorConfig{
		Name:            "channel-manager",
		Path:            h.cfg.ChannelPath,
		Handlers:        h.handlers,
		NATSConn:        natsConnOrNil(h.nats),
		IngestSubject:   h.cfg.NATS.IngestSubject,
		MetricsRegistry: h.registry,
		Logger:          h.logger,
	})
	if err := ch.Initialize(); err != nil {
		return err
	}

	runner := behaviour.NewRunner(behaviour.ConstructorConfig{
		Name:            "behaviour-runner",
		Sink:            ch,
		MetricsRegistry: h.registry,
		Logger:          h.logger,
	})
	if err := runner.Initialize(); err != nil {
		return err
	}
	for _, binding := range m.Behaviours {
		b, createErr := h.behaviours.Create(binding.Identifier, binding.Args)
		if createErr != nil {
			return createErr
		}
		interval, intervalErr := bindingInterval(binding)
		if intervalErr != nil {
			return intervalErr
		}
		if bindErr := runner.Bind(b, interval); bindErr != nil {
			return bindErr
		}
	}

	gw := gateway.NewGateway(gateway.ConstructorConfig{
		Name:            "gateway",
		Host:            h.cfg.Host,
		Port:            h.cfg.Port,
		Spec:            spec,
		Handlers:        h.handlers,
		Assets:          assets,
		Channel:         ch.Handler(),
		ChannelPath:     h.cfg.ChannelPath,
		CORSOrigins:     h.cfg.CORSOrigins,
		MaxRequestSize:  h.cfg.MaxRequestSize,
		MetricsRegistry: h.registry,
		Logger:          h.logger,
	})
	if err := gw.Initialize(); err != nil {
		return err
	}

	h.mu.Lock()
	h.manifest = m
	h.channel = ch
	h.runner = runner
	h.gateway = gw
	h.eventLog = component.NewLogger("host", ch, h.logger)
	h.mu.Unlock()

	return ctx.Err()
}

// natsConnOrNil unwraps the raw connection for components that subscribe
// directly.
func natsConnOrNil(c *natsclient.Client) *natspkg.Conn {
	if c == nil {
		return nil
	}
	return c.Conn()
}

// bindingInterval parses the tick interval from a behaviour binding's args.
func bindingInterval(b manifest.Binding) (time.Duration, error) {
	raw, ok := b.Args["interval"]
	if !ok || raw == "" {
		return behaviour.DefaultInterval, nil
	}
	interval, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Host", "setup",
			fmt.Sprintf("behaviour %s: bad interval %q: %v", b.Identifier, raw, err))
	}
	return interval, nil
}

// healthcheck starts every component and probes the gateway root route.
// A bind or probe failure sends the machine to the error round.
func (h *Host) healthcheck(ctx context.Context) error {
	h.mu.RLock()
	ch, runner, gw := h.channel, h.runner, h.gateway
	h.mu.RUnlock()

	if gw == nil {
		return errors.Wrap(errors.ErrNotStarted, "Host", "healthcheck",
			"no component loaded; entry round skipped setup")
	}

	if err := ch.Start(ctx); err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	if err := gw.Start(ctx); err != nil {
		return err
	}

	if err := h.probe(ctx, gw.Addr()); err != nil {
		return err
	}

	h.monitor.Update("gateway", health.FromComponentHealth("gateway", gw.Health()))
	h.monitor.Update("channel", health.FromComponentHealth("channel", ch.Health()))
	h.monitor.Update("behaviour", health.FromComponentHealth("behaviour", runner.Health()))
	return nil
}

// probe issues GET / against the freshly bound gateway and requires a
// non-server-error response. Transient failures are retried with backoff.
func (h *Host) probe(ctx context.Context, addr string) error {
	url := fmt.Sprintf("http://%s/", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	err := retry.Do(ctx, retry.Quick(), func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return retry.NonRetryable(reqErr)
		}

		resp, doErr := client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("probe returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "Host", "healthcheck", "probe root route")
	}
	return nil
}

// serve blocks while the component is in the serving round, refreshing the
// uptime gauge until the context is cancelled.
func (h *Host) serve(ctx context.Context) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.registry != nil {
				h.registry.CoreMetrics().RecordUptime(time.Since(h.startTime))
			}
		}
	}
}

// shutdown stops components in reverse dependency order: behaviours stop
// emitting first, then sessions drain, then the listener closes.
func (h *Host) shutdown() {
	h.mu.Lock()
	runner, ch, gw, nats := h.runner, h.channel, h.gateway, h.nats
	h.runner, h.channel, h.gateway, h.nats, h.eventLog = nil, nil, nil, nil, nil
	h.mu.Unlock()

	timeout := h.cfg.ShutdownTimeoutDuration()

	if runner != nil {
		if err := runner.Stop(timeout); err != nil {
			h.logger.Warn("behaviour runner stop", "error", err)
		}
	}
	if ch != nil {
		if err := ch.Stop(timeout); err != nil {
			h.logger.Warn("channel manager stop", "error", err)
		}
	}
	if gw != nil {
		if err := gw.Stop(timeout); err != nil {
			h.logger.Warn("gateway stop", "error", err)
		}
	}
	if nats != nil {
		nats.Close()
	}
}

// serveHealthz reports the aggregate host health as JSON. Component health
// is re-collected on every request so the endpoint reflects live state.
func (h *Host) serveHealthz(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	ch, runner, gw := h.channel, h.runner, h.gateway
	h.mu.RUnlock()

	if gw != nil {
		h.monitor.Update("gateway", health.FromComponentHealth("gateway", gw.Health()))
	}
	if ch != nil {
		h.monitor.Update("channel", health.FromComponentHealth("channel", ch.Health()))
	}
	if runner != nil {
		h.monitor.Update("behaviour", health.FromComponentHealth("behaviour", runner.Health()))
	}

	aggregate := h.monitor.AggregateHealth("frontgate")

	status := http.StatusOK
	if aggregate.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(aggregate)
}

func (h *Host) componentName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.manifest == nil {
		return ""
	}
	return h.manifest.Name
}
