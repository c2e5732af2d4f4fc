// Package natsclient manages the host's NATS connection. The channel
// manager consumes the raw connection for its ingest subscription; this
// package owns connect-with-backoff, reconnect logging, and health.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/pkg/retry"
)

// DefaultReconnectWait is the delay between automatic reconnect attempts.
const DefaultReconnectWait = 2 * time.Second

// Client wraps a NATS connection with retrying connect and health reporting.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	reconnectWait time.Duration
	maxReconnects int

	conn *natspkg.Conn
	mu   sync.RWMutex
}

// Option configures a Client
type Option func(*Client)

// WithName sets the connection name visible to the NATS server.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnectWait sets the delay between automatic reconnects.
func WithReconnectWait(wait time.Duration) Option {
	return func(c *Client) { c.reconnectWait = wait }
}

// New creates a Client for the given server URL. The connection is not
// established until Connect.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Client", "New", "NATS URL cannot be empty")
	}

	c := &Client{
		url:           url,
		name:          "frontgate",
		logger:        slog.Default(),
		reconnectWait: DefaultReconnectWait,
		maxReconnects: -1, // reconnect forever
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "natsclient")
	return c, nil
}

// Connect dials the server with exponential backoff. Once established, the
// underlying connection reconnects on its own.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	options := []natspkg.Option{
		natspkg.Name(c.name),
		natspkg.ReconnectWait(c.reconnectWait),
		natspkg.MaxReconnects(c.maxReconnects),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		natspkg.ReconnectHandler(func(conn *natspkg.Conn) {
			c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
		}),
		natspkg.ClosedHandler(func(_ *natspkg.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	}

	var conn *natspkg.Conn
	err := retry.Do(ctx, retry.Quick(), func() error {
		dialed, dialErr := natspkg.Connect(c.url, options...)
		if dialErr != nil {
			c.logger.Warn("NATS connect attempt failed", "url", c.url, "error", dialErr)
			return dialErr
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return errors.WrapTransient(errors.ErrConnectionLost, "Client", "Connect",
			"connect to "+c.url+": "+err.Error())
	}

	c.conn = conn
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())
	return nil
}

// Conn returns the underlying connection, nil before Connect.
func (c *Client) Conn() *natspkg.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsHealthy reports whether the connection is currently established.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// RTT measures the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return 0, errors.WrapTransient(errors.ErrConnectionLost,
			"Client", "RTT", "not connected")
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "RTT", "ping server")
	}
	return rtt, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "error", err)
		conn.Close()
	}
}
