// Package channel manages WebSocket sessions for the component host.
// It accepts browser connections, routes inbound typed messages to registered
// handlers, and fans outbound events out to every connected session. An
// optional NATS subscription feeds externally published events into the same
// fan-out path.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	natspkg "github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/metric"
)

// DefaultSendQueueSize bounds the per-session outbound queue. A session that
// falls this many events behind is disconnected rather than skipped ahead.
const DefaultSendQueueSize = 256

// ConstructorConfig holds all configuration needed to construct a Manager
type ConstructorConfig struct {
	Name            string                     // Component name (empty = "channel-manager")
	Path            string                     // WebSocket endpoint path
	Handlers        *component.HandlerRegistry // Handlers for inbound typed messages
	SendQueueSize   int                        // Per-session queue depth (0 = DefaultSendQueueSize)
	NATSConn        *natspkg.Conn              // Optional ingest connection (nil = disabled)
	IngestSubject   string                     // NATS subject to ingest when NATSConn is set
	MetricsRegistry *metric.MetricsRegistry    // Optional Prometheus metrics registry
	Logger          *slog.Logger               // Optional logger (nil = slog.Default)
}

// inboundMessage is the envelope clients send over the channel.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Manager owns all WebSocket sessions. It implements component.EventSink so
// behaviours and component loggers can publish without knowing about
// connections, and component.LifecycleComponent for host orchestration.
type Manager struct {
	name          string
	path          string
	handlers      *component.HandlerRegistry
	queueSize     int
	natsConn      *natspkg.Conn
	ingestSubject string
	logger        *slog.Logger

	upgrader websocket.Upgrader

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	natsSub *natspkg.Subscription

	// dropWarn throttles queue-overflow warnings so one stuck client
	// cannot flood the log.
	dropWarn *rate.Limiter

	running       bool
	startTime     time.Time
	mu            sync.RWMutex
	lifecycleMu   sync.Mutex
	wg            sync.WaitGroup
	lifecycleCtx  context.Context
	lifecycleStop context.CancelFunc

	eventsDelivered atomic.Int64

	errorCount int64
	lastError  string

	metrics *Metrics
}

var _ component.Discoverable = (*Manager)(nil)
var _ component.LifecycleComponent = (*Manager)(nil)
var _ component.EventSink = (*Manager)(nil)

// NewManager creates a channel Manager from ConstructorConfig.
func NewManager(cfg ConstructorConfig) *Manager {
	name := cfg.Name
	if name == "" {
		name = "channel-manager"
	}
	queueSize := cfg.SendQueueSize
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		name:          name,
		path:          cfg.Path,
		handlers:      cfg.Handlers,
		queueSize:     queueSize,
		natsConn:      cfg.NATSConn,
		ingestSubject: cfg.IngestSubject,
		logger:        logger.With("component", name),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The host serves its own frontend, so the browser origin is
			// whatever host the asset server answered on.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		sessions:  make(map[string]*session),
		dropWarn:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		startTime: time.Now(),
		metrics:   newMetrics(cfg.MetricsRegistry),
	}
}

// Meta returns the component metadata
func (m *Manager) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.name,
		Type:        "channel",
		Description: fmt.Sprintf("WebSocket event channel at %s", m.path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (m *Manager) Health() component.HealthStatus {
	m.mu.RLock()
	running := m.running
	errCount := m.errorCount
	lastErr := m.lastError
	start := m.startTime
	m.mu.RUnlock()

	return component.HealthStatus{
		Healthy:         running,
		LastCheck:       time.Now(),
		ErrorCount:      int(errCount),
		LastError:       lastErr,
		Uptime:          time.Since(start),
		EventsDelivered: m.eventsDelivered.Load(),
	}
}

// DataFlow returns the current data flow metrics
func (m *Manager) DataFlow() component.FlowMetrics {
	m.sessionsMu.RLock()
	var sent int64
	var lastActivity time.Time
	for _, s := range m.sessions {
		sent += s.eventsSent.Load()
		if s.connectedAt.After(lastActivity) {
			lastActivity = s.connectedAt
		}
	}
	m.sessionsMu.RUnlock()

	m.mu.RLock()
	errCount := m.errorCount
	start := m.startTime
	m.mu.RUnlock()

	var perSecond, errorRate float64
	if uptime := time.Since(start).Seconds(); uptime > 0 {
		perSecond = float64(sent) / uptime
	}
	if sent > 0 {
		errorRate = float64(errCount) / float64(sent)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the Manager configuration.
func (m *Manager) Initialize() error {
	if m.path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Initialize",
			"channel path cannot be empty")
	}
	if m.handlers == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Initialize",
			"handler registry cannot be nil")
	}
	if m.natsConn != nil && m.ingestSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Initialize",
			"ingest subject required when a NATS connection is configured")
	}
	return nil
}

// Start begins accepting sessions and, when configured, the NATS ingest
// subscription. The HTTP listener itself belongs to the gateway; the Manager
// only contributes its handler via Handler().
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Start",
			"context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Manager", "Start", "context already cancelled")
	}

	// Handler dispatch outlives the upgrade request, so pumps run under the
	// Manager's own lifecycle context rather than the request context.
	m.lifecycleCtx, m.lifecycleStop = context.WithCancel(context.Background())

	if m.natsConn != nil {
		sub, err := m.natsConn.Subscribe(m.ingestSubject, m.handleIngest)
		if err != nil {
			return errors.WrapTransient(err, "Manager", "Start",
				fmt.Sprintf("subscribe to ingest subject %s", m.ingestSubject))
		}
		m.natsSub = sub
	}

	m.running = true
	m.startTime = time.Now()
	return nil
}

// Stop disconnects every session and stops the ingest subscription.
func (m *Manager) Stop(timeout time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	sub := m.natsSub
	m.natsSub = nil
	if m.lifecycleStop != nil {
		m.lifecycleStop()
	}
	m.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			m.logger.Warn("ingest unsubscribe failed", "error", err)
		}
	}

	m.sessionsMu.Lock()
	for _, s := range m.sessions {
		s.close()
	}
	m.sessions = make(map[string]*session)
	m.sessionsMu.Unlock()
	if m.metrics != nil {
		m.metrics.sessionsConnected.Set(0)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Manager", "Stop",
			"session pumps did not exit within timeout")
	}
}

// Handler returns the HTTP handler that upgrades requests into sessions.
// The gateway mounts it on the channel path.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(m.accept)
}

func (m *Manager) accept(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		http.Error(w, "channel not accepting connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		m.recordError(fmt.Sprintf("upgrade: %v", err))
		return
	}

	s := newSession(uuid.NewString(), conn, m.queueSize)

	// Re-check running under sessionsMu: Stop wipes the session map after
	// clearing the flag, and a session registered here afterwards would
	// outlive the shutdown. The wg.Add must land inside the same critical
	// section so Stop's Wait never races with it.
	m.sessionsMu.Lock()
	m.mu.RLock()
	running = m.running
	m.mu.RUnlock()
	if !running {
		m.sessionsMu.Unlock()
		_ = conn.Close()
		return
	}
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.wg.Add(2)
	m.sessionsMu.Unlock()

	if m.metrics != nil {
		m.metrics.connectionTotal.Inc()
		m.metrics.sessionsConnected.Set(float64(count))
	}
	m.logger.Info("session connected", "session_id", s.id, "remote", r.RemoteAddr)

	m.mu.RLock()
	ctx := m.lifecycleCtx
	m.mu.RUnlock()

	go func() {
		defer m.wg.Done()
		s.writePump()
		m.removeSession(s, "write_failed")
	}()
	go func() {
		defer m.wg.Done()
		m.readPump(ctx, s)
	}()
}

// readPump consumes inbound envelopes and dispatches them to handlers.
// Handler replies go back to the originating session only.
func (m *Manager) readPump(ctx context.Context, s *session) {
	defer m.removeSession(s, "read_closed")

	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Debug("session read error", "session_id", s.id, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.logger.Warn("malformed inbound message dropped",
				"session_id", s.id, "error", err)
			continue
		}
		if msg.Type == "" {
			m.logger.Warn("inbound message without type dropped", "session_id", s.id)
			continue
		}

		handler, ok := m.handlers.Lookup(msg.Type)
		if !ok {
			m.logger.Warn("no handler for inbound message type",
				"session_id", s.id, "message_type", msg.Type)
			continue
		}

		reply, err := handler(ctx, msg.Data)
		if err != nil {
			m.recordError(err.Error())
			if m.metrics != nil {
				m.metrics.handlerErrors.WithLabelValues(msg.Type).Inc()
			}
			m.logger.Warn("inbound handler failed",
				"session_id", s.id, "message_type", msg.Type, "error", err)
			continue
		}
		if reply != nil {
			m.deliver(s, component.Event{
				Type:      msg.Type,
				Timestamp: time.Now(),
				Data:      reply,
			})
		}
	}
}

// Broadcast fans an event out to every connected session. Sessions whose
// queue is full are dropped so the rest of the fan-out is never delayed.
func (m *Manager) Broadcast(event component.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		m.recordError(fmt.Sprintf("marshal event: %v", err))
		return
	}

	m.sessionsMu.RLock()
	targets := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		targets = append(targets, s)
	}
	m.sessionsMu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			m.dropSlowSession(s)
			continue
		}
		m.eventsDelivered.Add(1)
		if m.metrics != nil {
			m.metrics.eventsBroadcast.WithLabelValues(event.Type).Inc()
			m.metrics.bytesSent.Add(float64(len(data)))
		}
	}
}

// Send delivers an event to a single session.
func (m *Manager) Send(sessionID string, event component.Event) error {
	m.sessionsMu.RLock()
	s, ok := m.sessions[sessionID]
	m.sessionsMu.RUnlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrSessionNotFound, "Manager", "Send",
			fmt.Sprintf("session %s", sessionID))
	}
	m.deliver(s, event)
	return nil
}

// SessionCount reports the number of connected sessions.
func (m *Manager) SessionCount() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) deliver(s *session, event component.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		m.recordError(fmt.Sprintf("marshal event: %v", err))
		return
	}
	if !s.enqueue(data) {
		m.dropSlowSession(s)
		return
	}
	m.eventsDelivered.Add(1)
	if m.metrics != nil {
		m.metrics.eventsBroadcast.WithLabelValues(event.Type).Inc()
		m.metrics.bytesSent.Add(float64(len(data)))
	}
}

// dropSlowSession disconnects a session that can no longer keep up.
// Within a session delivery stays in order, so falling behind means
// disconnecting rather than skipping events.
func (m *Manager) dropSlowSession(s *session) {
	if m.metrics != nil {
		m.metrics.eventsDropped.Inc()
	}
	if m.dropWarn.Allow() {
		m.logger.Warn("disconnecting slow session, send queue full",
			"session_id", s.id, "queue_size", m.queueSize)
	}
	s.close()
	m.removeSession(s, "queue_overflow")
}

// removeSession deregisters and closes a session. Safe to call more than
// once per session; only the first call observes it in the map.
func (m *Manager) removeSession(s *session, reason string) {
	m.sessionsMu.Lock()
	_, present := m.sessions[s.id]
	if present {
		delete(m.sessions, s.id)
	}
	count := len(m.sessions)
	m.sessionsMu.Unlock()

	s.close()

	if !present {
		return
	}
	if m.metrics != nil {
		m.metrics.sessionsConnected.Set(float64(count))
		m.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
	}
	m.logger.Info("session disconnected", "session_id", s.id, "reason", reason)
}

// handleIngest bridges externally published NATS messages into the fan-out.
// Non-JSON payloads are wrapped rather than rejected.
func (m *Manager) handleIngest(msg *natspkg.Msg) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return
	}

	if m.metrics != nil {
		m.metrics.ingestReceived.WithLabelValues(msg.Subject).Inc()
	}

	var event component.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.Type == "" {
		wrapped, merr := json.Marshal(map[string]string{
			"subject": msg.Subject,
			"data":    string(msg.Data),
		})
		if merr != nil {
			return
		}
		event = component.Event{
			Type:      "ingest",
			Timestamp: time.Now(),
			Data:      wrapped,
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.Broadcast(event)
}

func (m *Manager) recordError(detail string) {
	m.mu.Lock()
	m.errorCount++
	m.lastError = detail
	m.mu.Unlock()
}
