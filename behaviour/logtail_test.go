package behaviour

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
)

func tickLines(t *testing.T, tail component.Behaviour, state *component.BehaviourState) []string {
	t.Helper()
	events, err := tail.Tick(context.Background(), state)
	require.NoError(t, err)

	lines := make([]string, 0, len(events))
	for _, event := range events {
		require.Equal(t, EventTypeLogLine, event.Type)
		var payload logLinePayload
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		lines = append(lines, payload.Line)
	}
	return lines
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestNewLogTail_PathResolution(t *testing.T) {
	t.Run("from args", func(t *testing.T) {
		tail, err := NewLogTail(map[string]string{"path": "/tmp/x.log"})
		require.NoError(t, err)
		assert.Equal(t, "log_tail", tail.Name())
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv(LogFileEnv, "/tmp/env.log")
		_, err := NewLogTail(nil)
		assert.NoError(t, err)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		t.Setenv(LogFileEnv, "")
		_, err := NewLogTail(nil)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})
}

func TestLogTail_EmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	tail, err := NewLogTail(map[string]string{"path": path})
	require.NoError(t, err)
	state := component.NewBehaviourState()

	appendFile(t, path, "first\nsecond\n")
	assert.Equal(t, []string{"first", "second"}, tickLines(t, tail, state))

	appendFile(t, path, "third\n")
	assert.Equal(t, []string{"third"}, tickLines(t, tail, state))
}

func TestLogTail_IdempotentWithoutNewContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	tail, err := NewLogTail(map[string]string{"path": path})
	require.NoError(t, err)
	state := component.NewBehaviourState()

	appendFile(t, path, "only line\n")
	require.Len(t, tickLines(t, tail, state), 1)

	// No writes between ticks: the second tick must emit nothing.
	assert.Empty(t, tickLines(t, tail, state))
	assert.Empty(t, tickLines(t, tail, state))
}

func TestLogTail_CarriesPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	tail, err := NewLogTail(map[string]string{"path": path})
	require.NoError(t, err)
	state := component.NewBehaviourState()

	appendFile(t, path, "complete\npart")
	assert.Equal(t, []string{"complete"}, tickLines(t, tail, state))

	// The unterminated tail is held back until its newline arrives.
	appendFile(t, path, "ial\n")
	assert.Equal(t, []string{"partial"}, tickLines(t, tail, state))
}

func TestLogTail_TruncationResetsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	tail, err := NewLogTail(map[string]string{"path": path})
	require.NoError(t, err)
	state := component.NewBehaviourState()

	appendFile(t, path, "old one\nold two\n")
	require.Len(t, tickLines(t, tail, state), 2)

	// Rotation: the file restarts shorter than the committed offset.
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))
	assert.Equal(t, []string{"fresh"}, tickLines(t, tail, state))
}

func TestLogTail_MissingFileIsQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-written.log")
	tail, err := NewLogTail(map[string]string{"path": path})
	require.NoError(t, err)
	state := component.NewBehaviourState()

	assert.Empty(t, tickLines(t, tail, state))

	// Once the file appears, tailing starts from the top.
	appendFile(t, path, "late arrival\n")
	assert.Equal(t, []string{"late arrival"}, tickLines(t, tail, state))
}
