package component

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records broadcast events for assertions
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Broadcast(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestLogger_StreamsToSink(t *testing.T) {
	sink := &captureSink{}
	logger := NewLogger("gateway", sink, slog.Default())

	logger.Info("serving frontend")
	logger.Error("bind failed", errors.New("port in use"))

	events := sink.all()
	require.Len(t, events, 2)

	var first LogEntry
	require.NoError(t, json.Unmarshal(events[0].Data, &first))
	assert.Equal(t, "log", events[0].Type)
	assert.Equal(t, LogLevelInfo, first.Level)
	assert.Equal(t, "gateway", first.Component)
	assert.Equal(t, "serving frontend", first.Message)

	var second LogEntry
	require.NoError(t, json.Unmarshal(events[1].Data, &second))
	assert.Equal(t, LogLevelError, second.Level)
	assert.Contains(t, second.Detail, "port in use")
}

func TestLogger_NilSinkDisablesStreaming(t *testing.T) {
	logger := NewLogger("gateway", nil, slog.Default())

	// Must not panic with streaming disabled.
	logger.Debug("quiet")
	logger.Warn("still quiet")
}
