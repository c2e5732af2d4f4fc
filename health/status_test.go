package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/frontgate/component"
)

func TestStatus_StatePredicates(t *testing.T) {
	tests := []struct {
		state     string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{StateHealthy, true, false, false},
		{StateDegraded, false, true, false},
		{StateUnhealthy, false, false, true},
		{"unknown", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			s := Status{Status: tt.state}
			assert.Equal(t, tt.healthy, s.IsHealthy())
			assert.Equal(t, tt.degraded, s.IsDegraded())
			assert.Equal(t, tt.unhealthy, s.IsUnhealthy())
		})
	}
}

func TestFromComponentHealth(t *testing.T) {
	t.Run("healthy channel", func(t *testing.T) {
		status := FromComponentHealth("channel", component.HealthStatus{
			Healthy:         true,
			LastCheck:       time.Now(),
			Uptime:          42 * time.Second,
			EventsDelivered: 17,
		})

		assert.Equal(t, "channel", status.Component)
		assert.True(t, status.IsHealthy())
		assert.Equal(t, "component healthy", status.Message)
		require.NotNil(t, status.Metrics)
		assert.Equal(t, 42*time.Second, status.Metrics.Uptime)
		assert.Equal(t, int64(17), status.Metrics.EventsDelivered)
	})

	t.Run("unhealthy gateway with sanitized error", func(t *testing.T) {
		status := FromComponentHealth("gateway", component.HealthStatus{
			Healthy:    false,
			ErrorCount: 3,
			LastError:  "listen on 127.0.0.1:8000 failed",
		})

		assert.True(t, status.IsUnhealthy())
		assert.NotContains(t, status.Message, "127.0.0.1")
		assert.NotContains(t, status.Message, "8000")
		require.NotNil(t, status.Metrics)
		assert.Equal(t, 3, status.Metrics.ErrorCount)
	})
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /etc/frontgate/config.json", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\Users\\Admin\\config.json", "cannot read [PATH]"},
		{"http url", "connection failed to https://api.example.com/v1/health", "connection failed to [URL]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"websocket url", "upgrade failed for wss://example.com/ws", "upgrade failed for [URL]"},
		{"ip address", "peer 192.168.1.100 unreachable", "peer [IP] unreachable"},
		{"port", "listen on :8080 refused", "listen on [PORT] refused"},
		{"credential", "auth failed: token=abc123", "auth failed: [REDACTED]"},
		{"plain message", "behaviour tick returned an error", "behaviour tick returned an error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}
