package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/observability"
)

// Wire event names, shared with the mobile clients.
const (
	EventHello        = "hello"
	EventNewRide      = "newRide"
	EventDriverOnline = "driverOnline"
)

// Message is the {event, data} envelope used in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrNoSession means the push target has no live connection. Delivery is
// best-effort; callers log and move on.
var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (*NoSessionError) Error() string { return "no live session" }

// Session is one identity's live transport handle. Writes are serialized and
// bounded by a deadline so one broken peer never blocks a fan-out.
type Session struct {
	identity     string
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (s *Session) send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(outbound{Event: event, Data: data})
}

// close tears the transport down, optionally telling the peer why.
func (s *Session) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason != "" {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	}
	_ = s.conn.Close()
}

// Broker maps each logical identity to at most one live session and delivers
// server-pushed events to it. There is no outbox: an event pushed at an
// identity with no session is dropped.
type Broker struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewBroker(writeTimeout time.Duration, logger *slog.Logger) *Broker {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Broker{
		sessions:     make(map[string]*Session),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Register binds the connection to the identity. A prior session for the same
// identity is superseded: it is closed and stops receiving pushes. Newest
// wins, decided under the broker lock.
func (b *Broker) Register(identity string, conn *websocket.Conn) *Session {
	s := &Session{identity: identity, conn: conn, writeTimeout: b.writeTimeout}
	b.mu.Lock()
	old := b.sessions[identity]
	b.sessions[identity] = s
	b.mu.Unlock()

	if old != nil {
		old.close("session superseded by a newer connection")
		b.logger.Info("session superseded", "identity", identity)
	} else {
		observability.LiveSessions.Inc()
	}
	return s
}

// Unregister removes the session only if it is still the current one for the
// identity, so a reconnect racing the old session's teardown keeps the new
// session. Returns true when the identity no longer has any session.
func (b *Broker) Unregister(identity string, s *Session) bool {
	b.mu.Lock()
	cur, ok := b.sessions[identity]
	if !ok || cur != s {
		b.mu.Unlock()
		return false
	}
	delete(b.sessions, identity)
	b.mu.Unlock()
	observability.LiveSessions.Dec()
	return true
}

// Push delivers an event to the identity's current session, if any.
func (b *Broker) Push(identity, event string, payload any) error {
	b.mu.RLock()
	s, ok := b.sessions[identity]
	b.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.send(event, payload); err != nil {
		b.logger.Warn("push failed", "identity", identity, "event", event, "error", err)
		return err
	}
	return nil
}
