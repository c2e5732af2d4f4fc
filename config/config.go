// Package config loads and validates the host configuration file. The file
// is JSON, read with size, path and nesting-depth validation; individual
// fields can be overridden by flags or environment variables at the cmd
// layer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Default values applied by DefaultHostConfig.
const (
	DefaultPort            = 8000
	DefaultChannelPath     = "/ws"
	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultShutdownTimeout = "10s"
	DefaultEntryRound      = "setup"
)

// HostConfig is the top-level configuration for one component host.
type HostConfig struct {
	// Host is the bind address for the HTTP/WebSocket listener.
	Host string `json:"host"`
	// Port is the bind port for the HTTP/WebSocket listener.
	Port int `json:"port"`
	// ManifestPath points at the component manifest to load.
	ManifestPath string `json:"manifest_path"`
	// ChannelPath is the WebSocket upgrade endpoint.
	ChannelPath string `json:"channel_path"`
	// CORSOrigins lists allowed origins; empty means "*".
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// MaxRequestSize bounds API request bodies in bytes (0 = gateway default).
	MaxRequestSize int64 `json:"max_request_size,omitempty"`
	// ShutdownTimeout is a duration string, e.g. "10s".
	ShutdownTimeout string `json:"shutdown_timeout"`
	// EntryRound is the lifecycle entry point: "setup" or "healthcheck".
	EntryRound string `json:"entry_round"`

	Metrics MetricsConfig `json:"metrics"`
	NATS    NATSConfig    `json:"nats"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig configures the optional event ingest. An empty URL disables it.
type NATSConfig struct {
	URL           string `json:"url,omitempty"`
	IngestSubject string `json:"ingest_subject,omitempty"`
}

// DefaultHostConfig returns a config with all defaults applied. The
// manifest path has no default and must be supplied.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Port:            DefaultPort,
		ChannelPath:     DefaultChannelPath,
		ShutdownTimeout: DefaultShutdownTimeout,
		EntryRound:      DefaultEntryRound,
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    DefaultMetricsPort,
			Path:    DefaultMetricsPath,
		},
	}
}

// Validate checks the config for structural problems.
func (c *HostConfig) Validate() error {
	if c.ManifestPath == "" {
		return errors.New("manifest_path is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.EntryRound != "setup" && c.EntryRound != "healthcheck" {
		return fmt.Errorf("entry_round must be %q or %q, got %q", "setup", "healthcheck", c.EntryRound)
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.NATS.URL != "" && c.NATS.IngestSubject == "" {
		return errors.New("nats.ingest_subject is required when nats.url is set")
	}
	return nil
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout. Call only
// after Validate has passed.
func (c *HostConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}

// LoadHostConfig loads configuration from a JSON file, applying defaults
// for omitted fields.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	config := DefaultHostConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Save writes the config to a JSON file with secure permissions.
func (c *HostConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return safeWriteFile(path, data)
}

// ToJSON converts config to a JSON string for debugging
func (c *HostConfig) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
