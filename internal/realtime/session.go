package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/grimoire-rpg/grimoire/internal/auth"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound command frames.
	maxMessageSize = 4096
	// sendBuffer is the outbound backlog per session; a session that falls
	// further behind loses the overflow.
	sendBuffer = 64
)

// Session is one authenticated realtime connection.
type Session struct {
	// ID identifies the session in logs; it is not exposed to clients.
	ID   string
	User *auth.User

	conn *websocket.Conn
	send chan OutboundMessage
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

var _ Member = (*Session)(nil)

func newSession(conn *websocket.Conn, user *auth.User, log zerolog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		ID:   id,
		User: user,
		conn: conn,
		send: make(chan OutboundMessage, sendBuffer),
		log:  log.With().Str("session", id).Int64("user_id", user.ID).Logger(),
	}
}

// Deliver enqueues msg for the write pump. It never blocks: when the
// session's backlog is full the message is dropped and logged.
func (s *Session) Deliver(msg OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		s.log.Warn().Str("event", msg.Event).Msg("session backlog full, dropping event")
	}
}

// shutdown marks the session closed and wakes the write pump.
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump serializes all writes to the websocket connection: queued
// messages and keepalive pings. It exits when the session shuts down or a
// write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("write failed, dropping session")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
