package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/refdata"
)

// authTimeout bounds the external authenticator call so a stalled verify
// never wedges an accepting connection.
const authTimeout = 5 * time.Second

// Command is one inbound client frame: a room command or a reference-data
// search.
type Command struct {
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	Search string `json:"search,omitempty"`
}

// Client room commands and searches.
const (
	ActionOpenSheet       = "open-sheet"
	ActionCloseSheet      = "close-sheet"
	ActionOpenMacro       = "open-macro"
	ActionCloseMacro      = "close-macro"
	ActionTutorialsSearch = "tutorialsSearch"
)

// TutorialSearcher serves the tutorialsSearch command. Backed by the
// reference-data cache.
type TutorialSearcher interface {
	Search(query string) []refdata.Tutorial
}

// Gateway authenticates incoming websocket connections and runs their
// command loop. A connection is PENDING until its handshake credential
// verifies; rejected connections are told why and closed before any room
// command is read.
type Gateway struct {
	auth      auth.Authenticator
	registry  *Registry
	tutorials TutorialSearcher
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewGateway creates a connection gateway. tutorials may be nil, in which
// case tutorialsSearch returns empty results.
func NewGateway(authenticator auth.Authenticator, registry *Registry, tutorials TutorialSearcher, log zerolog.Logger) *Gateway {
	return &Gateway{
		auth:      authenticator,
		registry:  registry,
		tutorials: tutorials,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced at the transport boundary.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "gateway").Logger(),
	}
}

// ServeHTTP upgrades the request and runs the connection to completion.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	user, reason := g.authenticate(r)
	if user == nil {
		g.reject(conn, reason)
		return
	}

	session := newSession(conn, user, g.log)
	g.log.Info().Str("session", session.ID).Int64("user_id", user.ID).Msg("connection authenticated")

	// Account events are delivered to the user's own room.
	g.registry.Join(session, UserRoom(user.ID))

	go session.writePump()
	g.readLoop(session)

	g.registry.DropAll(session)
	session.shutdown()
	g.log.Info().Str("session", session.ID).Msg("connection closed")
}

// authenticate resolves the handshake credential to a user, or returns the
// rejection reason. The service token tier is HTTP-only: realtime sessions
// always belong to a user.
func (g *Gateway) authenticate(r *http.Request) (*auth.User, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "token not found"
	}

	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	defer cancel()

	identity, err := g.auth.Verify(ctx, header)
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return nil, "token not found"
	case errors.Is(err, auth.ErrInvalidToken):
		return nil, "invalid token"
	case errors.Is(err, auth.ErrUserNotFound):
		return nil, "user not found"
	case err != nil:
		g.log.Error().Err(err).Msg("authenticator failure")
		return nil, "error while trying to validate token"
	case identity.User == nil:
		return nil, "invalid token"
	}
	return identity.User, ""
}

func (g *Gateway) reject(conn *websocket.Conn, reason string) {
	g.log.Debug().Str("reason", reason).Msg("connection rejected")
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(OutboundMessage{Event: "error", Data: reason})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

// readLoop consumes command frames until the connection drops.
func (g *Gateway) readLoop(s *Session) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.Deliver(OutboundMessage{Event: "error", Data: "invalid command format"})
			continue
		}
		g.dispatch(s, cmd)
	}
}

func (g *Gateway) dispatch(s *Session, cmd Command) {
	switch cmd.Action {
	case ActionOpenSheet:
		g.registry.Join(s, SheetRoom(cmd.ID))
	case ActionCloseSheet:
		g.registry.Leave(s, SheetRoom(cmd.ID))
	case ActionOpenMacro:
		g.registry.Join(s, MacroRoom(cmd.ID))
	case ActionCloseMacro:
		g.registry.Leave(s, MacroRoom(cmd.ID))
	case ActionTutorialsSearch:
		var tutorials []refdata.Tutorial
		if g.tutorials != nil {
			tutorials = g.tutorials.Search(cmd.Search)
		}
		s.Deliver(OutboundMessage{
			Event: "tutorialsFound",
			Data:  map[string]any{"tutorials": tutorials},
		})
	default:
		s.Deliver(OutboundMessage{Event: "error", Data: "unknown command: " + cmd.Action})
	}
}
