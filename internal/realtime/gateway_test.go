package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/refdata"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// fakeAuth resolves a fixed token table.
type fakeAuth struct {
	identities map[string]*auth.Identity
}

func (f *fakeAuth) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	id, ok := f.identities[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	if id.User == nil && !id.Service {
		return nil, auth.ErrUserNotFound
	}
	return id, nil
}

type staticTutorials struct {
	results []refdata.Tutorial
}

func (s *staticTutorials) Search(query string) []refdata.Tutorial {
	return s.results
}

type gatewayHarness struct {
	server   *httptest.Server
	bus      *Bus
	registry *Registry
}

func newGatewayHarness(t *testing.T, tutorials TutorialSearcher) *gatewayHarness {
	t.Helper()

	authenticator := &fakeAuth{identities: map[string]*auth.Identity{
		"user-token":    {User: &auth.User{ID: 7, Username: "kara"}},
		"service-token": {Service: true},
		"ghost-token":   {},
	}}

	bus := NewBus()
	registry := NewRegistry()
	hub := NewHub(bus, registry, zerolog.Nop())
	gateway := NewGateway(authenticator, registry, tutorials, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(gateway)
	t.Cleanup(func() {
		server.Close()
		cancel()
		bus.Close()
	})
	return &gatewayHarness{server: server, bus: bus, registry: registry}
}

func (h *gatewayHarness) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) OutboundMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, nil)

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.Equal(t, "token not found", msg.Data)
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer nonsense"}})

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.Equal(t, "invalid token", msg.Data)
}

func TestGatewayRejectsDeletedUser(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer ghost-token"}})

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.Equal(t, "user not found", msg.Data)
}

func TestGatewayRejectsServiceToken(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer service-token"}})

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.Equal(t, "invalid token", msg.Data, "realtime connections are user-only")
}

func TestGatewaySheetRoomFlow(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer user-token"}})

	require.NoError(t, conn.WriteJSON(Command{Action: ActionOpenSheet, ID: 3}))
	waitForCount(t, h.registry, SheetRoom(3), 1)

	sheet := &document.Sheet{ID: 3, SheetName: "Hari"}
	h.bus.Publish(SheetUpdated(sheet, "origin-1"))

	msg := readMessage(t, conn)
	assert.Equal(t, EventSheetUpdated, msg.Event)
	assert.Equal(t, "origin-1", msg.Origin)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionCloseSheet, ID: 3}))
	waitForCount(t, h.registry, SheetRoom(3), 0)
}

func TestGatewayUserRoomJoinedOnConnect(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer user-token"}})

	waitForCount(t, h.registry, UserRoom(7), 1)

	h.bus.Publish(UserPasswordChanged(7))
	msg := readMessage(t, conn)
	assert.Equal(t, EventUserPasswordChanged, msg.Event)
}

func TestGatewayTutorialsSearch(t *testing.T) {
	tutorials := &staticTutorials{results: []refdata.Tutorial{{Title: "Dice rolls", Link: "/tutorials/dice"}}}
	h := newGatewayHarness(t, tutorials)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer user-token"}})

	require.NoError(t, conn.WriteJSON(Command{Action: ActionTutorialsSearch, Search: "dice"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "tutorialsFound", msg.Event)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	found, ok := data["tutorials"].([]any)
	require.True(t, ok)
	require.Len(t, found, 1)
}

func TestGatewayUnknownCommand(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer user-token"}})

	require.NoError(t, conn.WriteJSON(Command{Action: "self-destruct"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.Contains(t, msg.Data, "unknown command")
}

func TestGatewayDisconnectDropsMembership(t *testing.T) {
	h := newGatewayHarness(t, nil)
	conn := h.dial(t, http.Header{"Authorization": {"Bearer user-token"}})

	require.NoError(t, conn.WriteJSON(Command{Action: ActionOpenMacro, ID: 2}))
	waitForCount(t, h.registry, MacroRoom(2), 1)

	conn.Close()
	waitForCount(t, h.registry, MacroRoom(2), 0)
	waitForCount(t, h.registry, UserRoom(7), 0)
}

func waitForCount(t *testing.T, reg *Registry, room string, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if reg.Count(room) == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("room %s never reached %d members (have %d)", room, want, reg.Count(room))
		case <-time.After(5 * time.Millisecond):
		}
	}
}
