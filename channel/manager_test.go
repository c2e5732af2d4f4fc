package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
)

func newTestManager(t *testing.T, mutate func(*ConstructorConfig)) (*Manager, *httptest.Server) {
	t.Helper()

	handlers := component.NewHandlerRegistry()
	require.NoError(t, handlers.Register("echo",
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		}))
	require.NoError(t, handlers.Register("fail",
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return nil, fmt.Errorf("handler exploded")
		}))

	cfg := ConstructorConfig{
		Path:     "/ws",
		Handlers: handlers,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m := NewManager(cfg)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(2 * time.Second) })

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) component.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event component.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func waitForSessions(t *testing.T, m *Manager, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.SessionCount() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_InitializeValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConstructorConfig
	}{
		{name: "empty path", cfg: ConstructorConfig{Handlers: component.NewHandlerRegistry()}},
		{name: "nil handlers", cfg: ConstructorConfig{Path: "/ws"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewManager(tt.cfg).Initialize()
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestManager_EchoDispatch(t *testing.T) {
	_, srv := newTestManager(t, nil)
	conn := dial(t, srv)

	payload := json.RawMessage(`{"value":42}`)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "echo",
		"data": payload,
	}))

	event := readEvent(t, conn)
	assert.Equal(t, "echo", event.Type)
	assert.JSONEq(t, string(payload), string(event.Data))
	assert.False(t, event.Timestamp.IsZero())
}

func TestManager_UnknownTypeDropped(t *testing.T) {
	_, srv := newTestManager(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "nonexistent"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "echo", "data": "\"still here\""}))

	// The unknown type is dropped without killing the session; the echo
	// that follows still round-trips.
	event := readEvent(t, conn)
	assert.Equal(t, "echo", event.Type)
}

func TestManager_HandlerErrorKeepsSession(t *testing.T) {
	m, srv := newTestManager(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "fail"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "echo", "data": "1"}))

	event := readEvent(t, conn)
	assert.Equal(t, "echo", event.Type)

	health := m.Health()
	assert.Positive(t, health.ErrorCount)
	assert.Contains(t, health.LastError, "handler exploded")
}

func TestManager_BroadcastReachesAllSessions(t *testing.T) {
	m, srv := newTestManager(t, nil)
	connA := dial(t, srv)
	connB := dial(t, srv)
	waitForSessions(t, m, 2)

	for i := 0; i < 5; i++ {
		data, _ := json.Marshal(map[string]int{"seq": i})
		m.Broadcast(component.Event{Type: "tick", Timestamp: time.Now(), Data: data})
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		for i := 0; i < 5; i++ {
			event := readEvent(t, conn)
			require.Equal(t, "tick", event.Type)
			var body struct {
				Seq int `json:"seq"`
			}
			require.NoError(t, json.Unmarshal(event.Data, &body))
			// Per-session ordering matches publish order.
			assert.Equal(t, i, body.Seq)
		}
	}
}

func TestManager_SendUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	err := m.Send("no-such-session", component.Event{Type: "x"})
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestManager_SlowSessionDisconnected(t *testing.T) {
	m, srv := newTestManager(t, func(cfg *ConstructorConfig) {
		cfg.SendQueueSize = 4
	})
	conn := dial(t, srv)
	waitForSessions(t, m, 1)

	// The client never reads, so once the 4-slot queue and the transport
	// buffers fill, broadcasts overflow and the session is dropped.
	for i := 0; i < 10_000 && m.SessionCount() > 0; i++ {
		data, _ := json.Marshal(map[string]string{"pad": strings.Repeat("x", 1024)})
		m.Broadcast(component.Event{Type: "flood", Timestamp: time.Now(), Data: data})
	}

	waitForSessions(t, m, 0)

	// The server closed the connection from its side.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestManager_StopClosesSessions(t *testing.T) {
	m, srv := newTestManager(t, nil)
	conn := dial(t, srv)
	waitForSessions(t, m, 1)

	require.NoError(t, m.Stop(2*time.Second))
	assert.Equal(t, 0, m.SessionCount())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestManager_AcceptAfterStop(t *testing.T) {
	m, srv := newTestManager(t, nil)
	require.NoError(t, m.Stop(2*time.Second))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestManager_StopConcurrentWithConnects(t *testing.T) {
	m, srv := newTestManager(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Hammer the upgrade endpoint while Stop runs. A session that slips
	// past the wipe would leave the count above zero.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					return
				}
				_ = conn.Close()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Stop(2*time.Second))
	close(stop)
	wg.Wait()

	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_StartIdempotent(t *testing.T) {
	m := NewManager(ConstructorConfig{Path: "/ws", Handlers: component.NewHandlerRegistry()})
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(time.Second))
	require.NoError(t, m.Stop(time.Second))
}
