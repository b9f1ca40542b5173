package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/service"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// maxBodyBytes bounds document payloads; a full sheet is a few kilobytes.
const maxBodyBytes = 1 << 20

// handleSheetOne resolves a single sheet by ?id= or by ?userId=&sheetName=.
func (a *API) handleSheetOne(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)
	q := r.URL.Query()

	switch {
	case q.Get("id") != "":
		id, err := strconv.ParseInt(q.Get("id"), 10, 64)
		if err != nil {
			writeMissingParams(w)
			return
		}
		sheet, err := a.sheets.Get(r.Context(), actor, id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sheet": sheet})

	case q.Get("userId") != "" && q.Get("sheetName") != "":
		userID, err := strconv.ParseInt(q.Get("userId"), 10, 64)
		if err != nil {
			writeMissingParams(w)
			return
		}
		sheet, err := a.sheets.GetByOwnerAndName(r.Context(), actor, userID, q.Get("sheetName"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sheet": sheet})

	default:
		writeMissingParams(w)
	}
}

// handleSheetAll lists the acting user's sheet heads. The service tier must
// name the owner with ?userId=.
func (a *API) handleSheetAll(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)
	userID, err := resolveOwner(actor, r.URL.Query().Get("userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	heads, err := a.sheets.List(r.Context(), actor, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if heads == nil {
		heads = []document.SheetHead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheets": heads})
}

func (a *API) handleSheetCreate(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	var payload struct {
		SheetName string `json:"sheet_name"`
		IsPublic  bool   `json:"is_public"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeMissingParams(w)
		return
	}
	if payload.SheetName == "" {
		writeMissingParams(w)
		return
	}

	sheet, err := a.sheets.Create(r.Context(), actor, payload.SheetName, payload.IsPublic)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sheet": sheet})
}

// handleSheetUpdate replaces a sheet's full payload. The body is the sheet
// document plus an optional socket_identifier, echoed as the origin token on
// the resulting broadcast.
func (a *API) handleSheetUpdate(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	candidate, err := document.DecodeSheet(body)
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

	updated, err := a.sheets.Update(r.Context(), actor, candidate, meta.SocketIdentifier)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheet": updated})
}

func (a *API) handleSheetDelete(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r)

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeMissingParams(w)
		return
	}

	deleted, err := a.sheets.Delete(r.Context(), actor, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheet": deleted})
}

// resolveOwner picks the owner id for listing routes: the acting user's own
// id, or the explicit userId override which only the service tier may use
// for other owners (List enforces that).
func resolveOwner(actor *auth.Identity, explicit string) (int64, error) {
	if explicit != "" {
		userID, err := strconv.ParseInt(explicit, 10, 64)
		if err != nil {
			return 0, service.ErrUnauthorized
		}
		return userID, nil
	}
	if actor == nil || actor.User == nil {
		return 0, service.ErrUnauthorized
	}
	return actor.User.ID, nil
}
