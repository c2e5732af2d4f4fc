package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long a single frame write may block before the
	// session is considered broken.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the session.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so the peer has time to answer.
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes bounds a single inbound message frame.
	maxInboundBytes = 64 * 1024
)

// session is one connected WebSocket client. Outbound events go through the
// send queue so a slow reader never blocks a broadcast; the queue filling up
// means the client cannot keep pace and the session is dropped.
type session struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time

	eventsSent atomic.Int64
	closed     atomic.Bool
	closeOnce  sync.Once
}

func newSession(id string, conn *websocket.Conn, queueSize int) *session {
	return &session{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, queueSize),
		connectedAt: time.Now(),
	}
}

// enqueue offers a message to the session without blocking.
// A false return means the queue is full and the session must be dropped:
// delivery within a session is in-order, so skipping one message would
// silently corrupt the stream the client observes.
func (s *session) enqueue(data []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// close tears down the connection exactly once. Closing the underlying
// connection unblocks both pumps.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.Close()
	})
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings. One writer per connection, as the transport requires.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			s.eventsSent.Add(1)
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
