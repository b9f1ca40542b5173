package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/grimoire-rpg/grimoire/internal/service"
)

// handleUserGet returns the acting user's own summary.
func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)
	if actor == nil || actor.User == nil {
		a.writeError(w, r, service.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": actor.User})
}

// handleUserUpdate applies profile edits (username, avatar). Fields absent
// from the body are kept as-is.
func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	var payload struct {
		Username  *string `json:"username"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeMissingParams(w)
		return
	}

	updated, err := a.users.UpdateProfile(r.Context(), actor, service.ProfileUpdate{
		Username:  payload.Username,
		AvatarURL: payload.AvatarURL,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

// handleUserPasswordChanged broadcasts that a user's credential changed so
// their other sessions can re-authenticate. The account system calls this
// through the service tier with an explicit user_id; a user may also call it
// for their own account, in which case the body is optional.
func (a *API) handleUserPasswordChanged(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeMissingParams(w)
			return
		}
	}

	userID := payload.UserID
	if userID == 0 {
		if actor == nil || actor.User == nil {
			writeMissingParams(w)
			return
		}
		userID = actor.User.ID
	}

	if err := a.users.NotifyPasswordChanged(r.Context(), actor, userID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
