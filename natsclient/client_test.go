package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/frontgate/errors"
)

func TestNew_Validation(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		_, err := New("")
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := New("nats://localhost:4222")
		require.NoError(t, err)
		assert.Equal(t, "frontgate", c.name)
		assert.Equal(t, DefaultReconnectWait, c.reconnectWait)
	})

	t.Run("options", func(t *testing.T) {
		c, err := New("nats://localhost:4222",
			WithName("test-host"),
			WithReconnectWait(time.Second))
		require.NoError(t, err)
		assert.Equal(t, "test-host", c.name)
		assert.Equal(t, time.Second, c.reconnectWait)
	})
}

func TestClient_ConnectUnreachable(t *testing.T) {
	c, err := New("nats://127.0.0.1:1") // nothing listens here
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Nil(t, c.Conn())
	assert.False(t, c.IsHealthy())
}

func TestClient_RTTWithoutConnection(t *testing.T) {
	c, err := New("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.RTT()
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestClient_CloseIdempotent(t *testing.T) {
	c, err := New("nats://localhost:4222")
	require.NoError(t, err)

	// Close without ever connecting must not panic.
	c.Close()
	c.Close()
}
