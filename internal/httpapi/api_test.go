package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/realtime"
	"github.com/grimoire-rpg/grimoire/internal/service"
	"github.com/grimoire-rpg/grimoire/internal/store"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// fakeAuth resolves a fixed token table.
type fakeAuth struct {
	identities map[string]*auth.Identity
}

func (f *fakeAuth) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	identity, ok := f.identities[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return identity, nil
}

type harness struct {
	router http.Handler
	bus    *realtime.Bus
	sheets *service.SheetService
	macros *service.MacroService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	st, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := realtime.NewBus()
	t.Cleanup(func() { bus.Close() })

	sheets := service.NewSheetService(st, bus, zerolog.Nop())
	macros := service.NewMacroService(st, bus, zerolog.Nop())
	users := service.NewUserService(st, bus, zerolog.Nop())

	require.NoError(t, st.SaveUser(context.Background(), &auth.User{ID: 1, Username: "alice"}))
	require.NoError(t, st.SaveUser(context.Background(), &auth.User{ID: 2, Username: "bob"}))

	authenticator := &fakeAuth{identities: map[string]*auth.Identity{
		"alice-token":   {User: &auth.User{ID: 1, Username: "alice"}},
		"bob-token":     {User: &auth.User{ID: 2, Username: "bob"}},
		"service-token": {Service: true},
	}}

	api := New(sheets, macros, users, authenticator, nil, Options{CORSOrigin: "https://app.example.com"}, zerolog.Nop())
	return &harness{router: api.Router(), bus: bus, sheets: sheets, macros: macros}
}

// do runs a request through the router and decodes the JSON response body.
func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	decoded := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func (h *harness) createSheet(t *testing.T, token, name string, public bool) *document.Sheet {
	t.Helper()
	rec, body := h.do(t, http.MethodPost, "/sheet/create", token, map[string]any{"sheet_name": name, "is_public": public})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %v", body)

	var sheet document.Sheet
	require.NoError(t, json.Unmarshal(body["sheet"], &sheet))
	return &sheet
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t)

	t.Run("bad token is rejected", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/sheet/all", "nonsense", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token is anonymous, not rejected", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cors headers are set", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSheetRoutes(t *testing.T) {
	h := newHarness(t)

	t.Run("create requires a user", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, "/sheet/create", "", map[string]any{"sheet_name": "Nobody"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	sheet := h.createSheet(t, "alice-token", "Aldric", false)
	public := h.createSheet(t, "alice-token", "Shared", true)

	t.Run("duplicate name is a 400 with the error list", func(t *testing.T) {
		rec, body := h.do(t, http.MethodPost, "/sheet/create", "alice-token", map[string]any{"sheet_name": "Aldric"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errs []document.FieldError
		require.NoError(t, json.Unmarshal(body["errors"], &errs))
		require.Len(t, errs, 1)
		assert.Equal(t, "sheet_name", errs[0].Field)
	})

	t.Run("owner fetches by id", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, fmt.Sprintf("/sheet/one?id=%d", sheet.ID), "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got document.Sheet
		require.NoError(t, json.Unmarshal(body["sheet"], &got))
		assert.Equal(t, sheet.SheetPassword, got.SheetPassword)
	})

	t.Run("anonymous fetches public sheet without password", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, fmt.Sprintf("/sheet/one?id=%d", public.ID), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got document.Sheet
		require.NoError(t, json.Unmarshal(body["sheet"], &got))
		assert.Empty(t, got.SheetPassword)
	})

	t.Run("stranger gets 403 on private sheet", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, fmt.Sprintf("/sheet/one?id=%d", sheet.ID), "bob-token", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing sheet is 404", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/sheet/one?id=999", "alice-token", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lookup by owner and name", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/sheet/one?userId=1&sheetName=Shared", "bob-token", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing parameters", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/sheet/one", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list own sheets", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, "/sheet/all", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var heads []document.SheetHead
		require.NoError(t, json.Unmarshal(body["sheets"], &heads))
		assert.Len(t, heads, 2)
	})

	t.Run("service tier lists any owner", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, "/sheet/all?userId=1", "service-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var heads []document.SheetHead
		require.NoError(t, json.Unmarshal(body["sheets"], &heads))
		assert.Len(t, heads, 2)
	})
}

func TestSheetUpdateRoute(t *testing.T) {
	h := newHarness(t)
	sheet := h.createSheet(t, "alice-token", "Hari", false)

	sub := h.bus.Subscribe()
	t.Cleanup(func() { sub.Close() })

	t.Run("accepted update broadcasts with the socket identifier", func(t *testing.T) {
		payload := map[string]any{
			"id":         sheet.ID,
			"user_id":    sheet.UserID,
			"sheet_name": "Hari",
			"attributes": map[string]any{
				"sections": []map[string]any{
					{"name": "Info", "position": 0, "attributes": []map[string]any{
						{"name": "Strength", "position": 0, "type": 1, "value": "14"},
					}},
				},
			},
			"socket_identifier": "sock-1",
		}

		rec, body := h.do(t, http.MethodPut, "/sheet/update", "alice-token", payload)
		require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, realtime.EventSheetUpdated, ev.Name)
			assert.Equal(t, "sock-1", ev.Origin)
		case <-time.After(time.Second):
			t.Fatal("expected a sheet-updated event")
		}
	})

	t.Run("validation failure is 400 with the error list and no event", func(t *testing.T) {
		payload := map[string]any{
			"id":         sheet.ID,
			"sheet_name": "Hari",
			"attributes": map[string]any{
				"sections": []map[string]any{
					{"name": "", "position": 0, "attributes": []map[string]any{}},
				},
			},
		}

		rec, body := h.do(t, http.MethodPut, "/sheet/update", "alice-token", payload)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errs []document.FieldError
		require.NoError(t, json.Unmarshal(body["errors"], &errs))
		assert.NotEmpty(t, errs)

		select {
		case ev := <-sub.Events():
			t.Fatalf("unexpected event %s", ev.Name)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("malformed payload shape is 400", func(t *testing.T) {
		payload := map[string]any{
			"id":         sheet.ID,
			"sheet_name": "Hari",
			"attributes": map[string]any{"sections": "not-an-array"},
		}

		rec, _ := h.do(t, http.MethodPut, "/sheet/update", "alice-token", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-owner update is 403", func(t *testing.T) {
		payload := map[string]any{
			"id":         sheet.ID,
			"sheet_name": "Hari",
			"attributes": map[string]any{"sections": []map[string]any{}},
		}

		rec, _ := h.do(t, http.MethodPut, "/sheet/update", "bob-token", payload)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSheetDeleteRoute(t *testing.T) {
	h := newHarness(t)
	sheet := h.createSheet(t, "alice-token", "Doomed", false)

	t.Run("stranger cannot delete", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodDelete, fmt.Sprintf("/sheet/delete?id=%d", sheet.ID), "bob-token", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner delete returns the final state", func(t *testing.T) {
		rec, body := h.do(t, http.MethodDelete, fmt.Sprintf("/sheet/delete?id=%d", sheet.ID), "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got document.Sheet
		require.NoError(t, json.Unmarshal(body["sheet"], &got))
		assert.Equal(t, sheet.ID, got.ID)

		rec, _ = h.do(t, http.MethodGet, fmt.Sprintf("/sheet/one?id=%d", sheet.ID), "alice-token", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMacroRoutes(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, http.MethodPost, "/macro/create", "alice-token", map[string]any{"macro_name": "Attacks"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var macro document.Macro
	require.NoError(t, json.Unmarshal(body["macro"], &macro))

	t.Run("update with valid dice", func(t *testing.T) {
		payload := map[string]any{
			"id":         macro.ID,
			"macro_name": "Attacks",
			"macros": map[string]any{
				"sections": []map[string]any{
					{"name": "Attacks", "position": 0, "macros": []map[string]any{
						{"name": "Longsword", "position": 0, "type": 0, "value": "1d20+5"},
					}},
				},
			},
		}

		rec, _ := h.do(t, http.MethodPut, "/macro/update", "alice-token", payload)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad dice expression is 400", func(t *testing.T) {
		payload := map[string]any{
			"id":         macro.ID,
			"macro_name": "Attacks",
			"macros": map[string]any{
				"sections": []map[string]any{
					{"name": "Attacks", "position": 0, "macros": []map[string]any{
						{"name": "Broken", "position": 0, "type": 0, "value": "d20++"},
					}},
				},
			},
		}

		rec, body := h.do(t, http.MethodPut, "/macro/update", "alice-token", payload)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errs []document.FieldError
		require.NoError(t, json.Unmarshal(body["errors"], &errs))
		assert.NotEmpty(t, errs)
	})

	t.Run("list and delete", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, "/macro/all", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var heads []document.MacroHead
		require.NoError(t, json.Unmarshal(body["macros"], &heads))
		assert.Len(t, heads, 1)

		rec, _ = h.do(t, http.MethodDelete, fmt.Sprintf("/macro/delete?id=%d", macro.ID), "alice-token", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestUserRoutes(t *testing.T) {
	h := newHarness(t)

	sub := h.bus.Subscribe()
	t.Cleanup(func() { sub.Close() })

	t.Run("get requires a user identity", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/user", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, _ = h.do(t, http.MethodGet, "/user", "service-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("get returns the acting user", func(t *testing.T) {
		rec, body := h.do(t, http.MethodGet, "/user", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var user auth.User
		require.NoError(t, json.Unmarshal(body["user"], &user))
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("profile update broadcasts user-changed", func(t *testing.T) {
		rec, body := h.do(t, http.MethodPatch, "/user", "alice-token", map[string]any{"username": "Alice the Bold"})
		require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)

		var user auth.User
		require.NoError(t, json.Unmarshal(body["user"], &user))
		assert.Equal(t, "Alice the Bold", user.Username)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, realtime.EventUserChanged, ev.Name)
			assert.Equal(t, realtime.UserRoom(1), ev.Room)
		case <-time.After(time.Second):
			t.Fatal("expected a user-changed event")
		}
	})

	t.Run("invalid username is 400 with the error list", func(t *testing.T) {
		rec, body := h.do(t, http.MethodPatch, "/user", "alice-token", map[string]any{"username": "<script>"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errs []document.FieldError
		require.NoError(t, json.Unmarshal(body["errors"], &errs))
		require.Len(t, errs, 1)
		assert.Equal(t, "username", errs[0].Field)
	})

	t.Run("password change notifies the user's own room", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, "/user/password-changed", "alice-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, realtime.EventUserPasswordChanged, ev.Name)
			assert.Equal(t, realtime.UserRoom(1), ev.Room)
		case <-time.After(time.Second):
			t.Fatal("expected a user-password-changed event")
		}
	})

	t.Run("service tier names the user explicitly", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, "/user/password-changed", "service-token", map[string]any{"user_id": 2})
		require.Equal(t, http.StatusOK, rec.Code)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, realtime.UserRoom(2), ev.Room)
		case <-time.After(time.Second):
			t.Fatal("expected a user-password-changed event")
		}
	})

	t.Run("user cannot notify for another account", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, "/user/password-changed", "bob-token", map[string]any{"user_id": 1})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestReferenceRoutes(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, http.MethodGet, "/tutorial", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(body["tutorials"])))

	rec, body = h.do(t, http.MethodGet, "/command", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(body["commands"])))
}
