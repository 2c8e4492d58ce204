package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/models"
)

var upgrader = websocket.Upgrader{
	// The mobile clients connect from app origins; credential checks happen in
	// the handshake message, not at upgrade time.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const handshakeTimeout = 10 * time.Second

// helloData identifies the peer. A signed token is preferred; the explicit
// driver id form is kept for development tooling.
type helloData struct {
	Token    string `json:"token,omitempty"`
	DriverID string `json:"driverId,omitempty"`
}

// locationData mirrors the driverOnline event the driver app emits every
// five seconds while online.
type locationData struct {
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Heading *float64 `json:"heading,omitempty"`
}

// handleWS owns one connection's lifecycle: provisional until the hello
// handshake names an identity, then registered with the broker until the
// read loop ends, at which point drivers are marked offline.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	identity, err := s.awaitHandshake(conn)
	if err != nil {
		s.logger.Info("ws handshake rejected", "error", err)
		_ = conn.Close()
		return
	}

	session := s.Broker.Register(identity.Subject, conn)
	s.logger.Info("session registered", "identity", identity.Subject, "role", identity.Role)

	s.readLoop(conn, identity)

	if s.Broker.Unregister(identity.Subject, session) && identity.Role == auth.RoleDriver {
		s.Registry.MarkOffline(r.Context(), identity.Subject)
	}
	_ = conn.Close()
}

func (s *Server) awaitHandshake(conn *websocket.Conn) (auth.Identity, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg dispatch.Message
	if err := conn.ReadJSON(&msg); err != nil {
		return auth.Identity{}, err
	}
	if msg.Event != dispatch.EventHello {
		return auth.Identity{}, auth.ErrMissingToken
	}
	var hello helloData
	if err := json.Unmarshal(msg.Data, &hello); err != nil {
		return auth.Identity{}, err
	}
	if hello.Token != "" {
		return s.Verifier.Parse(hello.Token)
	}
	if hello.DriverID != "" {
		return auth.Identity{Subject: hello.DriverID, Role: auth.RoleDriver}, nil
	}
	return auth.Identity{}, auth.ErrMissingToken
}

func (s *Server) readLoop(conn *websocket.Conn, identity auth.Identity) {
	for {
		var msg dispatch.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("ws read ended", "identity", identity.Subject, "error", err)
			}
			return
		}
		switch msg.Event {
		case dispatch.EventDriverOnline:
			s.handleHeartbeat(identity, msg.Data)
		default:
			s.logger.Debug("unknown ws event", "identity", identity.Subject, "event", msg.Event)
		}
	}
}

// handleHeartbeat treats a driverOnline event as a location report for the
// session's own identity; the payload cannot report for someone else.
func (s *Server) handleHeartbeat(identity auth.Identity, data json.RawMessage) {
	if identity.Role != auth.RoleDriver {
		return
	}
	var loc locationData
	if err := json.Unmarshal(data, &loc); err != nil {
		s.logger.Warn("bad heartbeat payload", "identity", identity.Subject, "error", err)
		return
	}
	if err := fare.ValidateCoord(models.Coord{Lat: loc.Lat, Lng: loc.Lng}); err != nil {
		s.logger.Warn("heartbeat out of range", "identity", identity.Subject, "error", err)
		return
	}
	rep := models.LocationReport{
		DriverID: identity.Subject,
		Lat:      loc.Lat,
		Lng:      loc.Lng,
		Heading:  loc.Heading,
	}
	s.Registry.ReportLocation(context.Background(), rep)
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(rep); err != nil {
			s.logger.Warn("location publish failed", "driver_id", identity.Subject, "error", err)
		}
	}
}
