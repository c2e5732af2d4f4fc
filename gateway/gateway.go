// Package gateway is the HTTP surface of the component host. It serves the
// frontend bundle, dispatches declared API routes to registered handlers
// with response-schema validation, and mounts the WebSocket channel
// endpoint, all on one listener.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/manifest"
	"github.com/c360/frontgate/metric"
)

// DefaultMaxRequestSize bounds API request bodies.
const DefaultMaxRequestSize = 1 << 20 // 1 MiB

// DefaultChannelPath is the WebSocket upgrade endpoint.
const DefaultChannelPath = "/ws"

// apiPrefix marks paths that must resolve to a declared operation.
const apiPrefix = "/api/"

// ConstructorConfig holds all configuration needed to construct a Gateway
type ConstructorConfig struct {
	Name            string                     // Component name (empty = auto-generate)
	Host            string                     // Bind host (empty = all interfaces)
	Port            int                        // Bind port (0 = ephemeral, for tests)
	Spec            *manifest.APISpec          // Declared API routes
	Handlers        *component.HandlerRegistry // Handlers bound by operation id
	Assets          *AssetServer               // Frontend bundle server
	Channel         http.Handler               // WebSocket upgrade handler (nil = no channel)
	ChannelPath     string                     // Channel endpoint path (empty = DefaultChannelPath)
	CORSOrigins     []string                   // Allowed origins (empty = "*")
	MaxRequestSize  int64                      // Request body limit (0 = DefaultMaxRequestSize)
	MetricsRegistry *metric.MetricsRegistry    // Optional Prometheus metrics registry
	Logger          *slog.Logger               // Optional logger (nil = slog.Default)
}

// Gateway implements the HTTP server for one loaded component.
type Gateway struct {
	name           string
	host           string
	port           int
	spec           *manifest.APISpec
	handlers       *component.HandlerRegistry
	assets         *AssetServer
	channel        http.Handler
	channelPath    string
	corsOrigins    []string
	maxRequestSize int64
	logger         *slog.Logger

	server   *http.Server
	listener net.Listener

	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	requestsTotal  atomic.Int64
	requestsFailed atomic.Int64
	bytesSent      atomic.Int64
	lastActivity   atomic.Value // time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Gateway)(nil)
var _ component.LifecycleComponent = (*Gateway)(nil)

// NewGateway creates a Gateway from ConstructorConfig.
func NewGateway(cfg ConstructorConfig) *Gateway {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("gateway-%d", cfg.Port)
	}
	channelPath := cfg.ChannelPath
	if channelPath == "" {
		channelPath = DefaultChannelPath
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		name:           name,
		host:           cfg.Host,
		port:           cfg.Port,
		spec:           cfg.Spec,
		handlers:       cfg.Handlers,
		assets:         cfg.Assets,
		channel:        cfg.Channel,
		channelPath:    channelPath,
		corsOrigins:    origins,
		maxRequestSize: maxSize,
		logger:         logger.With("component", name),
		startTime:      time.Now(),
		metrics:        newMetrics(cfg.MetricsRegistry),
	}
}

// Meta returns the component metadata
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        "gateway",
		Description: fmt.Sprintf("HTTP gateway on %s:%d", g.host, g.port),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (g *Gateway) Health() component.HealthStatus {
	g.mu.RLock()
	running := g.running
	start := g.startTime
	g.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(g.requestsFailed.Load()),
		Uptime:     time.Since(start),
	}
}

// DataFlow returns the current data flow metrics
func (g *Gateway) DataFlow() component.FlowMetrics {
	g.mu.RLock()
	start := g.startTime
	g.mu.RUnlock()

	total := g.requestsTotal.Load()
	failed := g.requestsFailed.Load()
	bytes := g.bytesSent.Load()

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(start).Seconds(); uptime > 0 {
		perSecond = float64(total) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	var lastActivity time.Time
	if v := g.lastActivity.Load(); v != nil {
		lastActivity = v.(time.Time)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration and verifies every declared JSON
// operation has a registered handler. HTML operations may instead be
// satisfied by the asset server.
func (g *Gateway) Initialize() error {
	if g.spec == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"API spec cannot be nil")
	}
	if g.handlers == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"handler registry cannot be nil")
	}
	if g.assets == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"asset server cannot be nil")
	}
	if g.port < 0 || g.port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			fmt.Sprintf("invalid port %d", g.port))
	}

	for _, op := range g.spec.Operations() {
		if _, ok := g.handlers.Lookup(op.OperationID); ok {
			continue
		}
		if strings.Contains(op.ContentType, "html") {
			continue // served from the frontend bundle
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			fmt.Sprintf("operation %s %s has no handler registered as %q",
				op.Method, op.Path, op.OperationID))
	}

	return nil
}

// Start binds the listener and begins serving. A bind failure is surfaced
// as ErrBindFailed so the lifecycle can route it to the error round.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Start",
			"context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Gateway", "Start", "context already cancelled")
	}

	addr := fmt.Sprintf("%s:%d", g.host, g.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(errors.ErrBindFailed, "Gateway", "Start",
			fmt.Sprintf("listen on %s: %v", addr, err))
	}
	g.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.route)
	g.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.running = true
	g.startTime = time.Now()

	go func() {
		if serveErr := g.server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			g.logger.Error("HTTP server exited", "error", serveErr)
		}
	}()

	g.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Stop drains active requests and closes the listener.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	server := g.server
	g.server = nil
	g.listener = nil
	g.mu.Unlock()

	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// Force-close whatever did not drain in time.
		_ = server.Close()
		return errors.WrapTransient(err, "Gateway", "Stop", "graceful shutdown")
	}
	return nil
}

// Addr returns the bound listener address, usable once Start has returned.
func (g *Gateway) Addr() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// route is the single entry point: channel upgrade, declared API routes,
// then static assets, in that order.
func (g *Gateway) route(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	g.requestsTotal.Add(1)
	g.lastActivity.Store(time.Now())

	requestID := getOrGenerateRequestID(r)
	w.Header().Set("X-Request-ID", requestID)
	g.applyCORS(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if g.channel != nil && r.URL.Path == g.channelPath {
		g.channel.ServeHTTP(w, r)
		g.observe("channel", start)
		return
	}

	if op, ok := g.spec.Lookup(r.Method, r.URL.Path); ok {
		if _, bound := g.handlers.Lookup(op.OperationID); bound {
			g.dispatch(w, r, op, requestID)
			g.observe("api", start)
			return
		}
		// Declared but unbound operations (the HTML routes) fall through
		// to the asset server.
	} else if strings.HasPrefix(r.URL.Path, apiPrefix) {
		// Undeclared API paths never reach the SPA fallback.
		g.writeError(w, r, http.StatusNotFound,
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
		g.observe("api", start)
		return
	}

	recorder := &countingWriter{ResponseWriter: w, status: http.StatusOK}
	g.assets.ServeHTTP(recorder, r)
	g.bytesSent.Add(recorder.bytes)
	if g.metrics != nil {
		g.metrics.assetsServed.Inc()
		g.metrics.requestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%d", recorder.status)).Inc()
		g.metrics.bytesSent.Add(float64(recorder.bytes))
	}
	if recorder.status >= 400 {
		g.requestsFailed.Add(1)
	}
	g.observe("static", start)
}

// dispatch invokes the handler bound to a declared operation and validates
// its output against the declared response schema. A violation is logged
// and counted but the handler's raw output is still returned.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request, op manifest.Operation, requestID string) {
	defer func() { _ = r.Body.Close() }()

	bodyReader := io.LimitReader(r.Body, g.maxRequestSize+1)
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > g.maxRequestSize {
		g.writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", g.maxRequestSize))
		return
	}

	handler, _ := g.handlers.Lookup(op.OperationID)
	response, err := handler(r.Context(), body)
	if err != nil {
		g.logger.Warn("handler failed",
			"operation", op.OperationID, "request_id", requestID, "error", err)
		g.writeError(w, r, mapErrorToHTTPStatus(err), sanitizeError(err))
		return
	}

	if op.Schema != nil {
		g.validateResponse(op, response, requestID)
	}

	w.Header().Set("Content-Type", op.ContentType)
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(response)
	g.bytesSent.Add(int64(n))
	if g.metrics != nil {
		g.metrics.requestsTotal.WithLabelValues(r.Method, "200").Inc()
		g.metrics.bytesSent.Add(float64(n))
	}
}

// validateResponse checks handler output against the declared schema.
// Violations are observability signals, never request failures.
func (g *Gateway) validateResponse(op manifest.Operation, response []byte, requestID string) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(op.Schema),
		gojsonschema.NewBytesLoader(response),
	)
	if err != nil {
		g.logger.Warn("response validation errored",
			"operation", op.OperationID, "request_id", requestID, "error", err)
		return
	}
	if result.Valid() {
		return
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	violation := errors.WrapInvalid(errors.ErrSchemaViolation, "Gateway", "dispatch",
		fmt.Sprintf("operation %s: %s", op.OperationID, strings.Join(details, "; ")))
	g.logger.Warn("handler output violates declared schema",
		"operation", op.OperationID, "request_id", requestID, "error", violation)
	if g.metrics != nil {
		g.metrics.schemaViolations.WithLabelValues(op.OperationID).Inc()
	}
}

// applyCORS sets CORS headers on every response.
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := ""
	for _, candidate := range g.corsOrigins {
		if candidate == "*" {
			allowed = "*"
			break
		}
		if candidate == origin {
			allowed = origin
			break
		}
	}
	if allowed == "" {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	g.requestsFailed.Add(1)
	if g.metrics != nil {
		g.metrics.requestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%d", statusCode)).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = fmt.Fprintf(w, `{"error":%q,"status":%d}`, message, statusCode)
}

func (g *Gateway) observe(routeKind string, start time.Time) {
	if g.metrics != nil {
		g.metrics.requestDuration.WithLabelValues(routeKind).Observe(time.Since(start).Seconds())
	}
}

// mapErrorToHTTPStatus maps classified handler errors to HTTP status codes
func mapErrorToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeError returns a safe message for external clients; full detail
// stays in the server log.
func sanitizeError(err error) string {
	switch {
	case err == nil:
		return "internal server error"
	case stderrors.Is(err, errors.ErrNotFound):
		return "resource not found"
	case errors.IsInvalid(err):
		return "invalid request"
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return "request timeout"
		}
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

// getOrGenerateRequestID extracts the request ID header or generates one.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// countingWriter records the status and byte count of a response.
type countingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (c *countingWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *countingWriter) Write(data []byte) (int, error) {
	n, err := c.ResponseWriter.Write(data)
	c.bytes += int64(n)
	return n, err
}
