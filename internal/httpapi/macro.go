package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/grimoire-rpg/grimoire/pkg/document"
)

func (a *API) handleMacroOne(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeMissingParams(w)
		return
	}

	macro, err := a.macros.Get(r.Context(), actor, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"macro": macro})
}

func (a *API) handleMacroAll(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)
	userID, err := resolveOwner(actor, r.URL.Query().Get("userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	heads, err := a.macros.List(r.Context(), actor, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if heads == nil {
		heads = []document.MacroHead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"macros": heads})
}

func (a *API) handleMacroCreate(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	var payload struct {
		MacroName string `json:"macro_name"`
		IsPublic  bool   `json:"is_public"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeMissingParams(w)
		return
	}
	if payload.MacroName == "" {
		writeMissingParams(w)
		return
	}

	macro, err := a.macros.Create(r.Context(), actor, payload.MacroName, payload.IsPublic)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"macro": macro})
}

func (a *API) handleMacroUpdate(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	candidate, err := document.DecodeMacro(body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if candidate.ID == 0 {
		writeMissingParams(w)
		return
	}

	var meta struct {
		SocketIdentifier string `json:"socket_identifier"`
	}
	json.Unmarshal(body, &meta)

	updated, err := a.macros.Update(r.Context(), actor, candidate, meta.SocketIdentifier)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"macro": updated})
}

func (a *API) handleMacroDelete(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeMissingParams(w)
		return
	}

	deleted, err := a.macros.Delete(r.Context(), actor, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"macro": deleted})
}
