// Package httpapi exposes the document services over HTTP. Routes mirror the
// client contract: /sheet and /macro CRUD with query-parameter lookups,
// /tutorial and /command reference data, and /health. The websocket endpoint
// is mounted by the composition root next to this router.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/refdata"
	"github.com/grimoire-rpg/grimoire/internal/service"
)

// API wires the services into HTTP handlers.
type API struct {
	sheets     *service.SheetService
	macros     *service.MacroService
	users      *service.UserService
	auth       auth.Authenticator
	refdata    *refdata.Cache
	corsOrigin string
	log        zerolog.Logger
}

// Options configures optional API behaviour.
type Options struct {
	// CORSOrigin is the value for Access-Control-Allow-Origin; empty
	// disables the CORS headers entirely.
	CORSOrigin string
}

// New creates the API. refdataCache may be nil when reference data is not
// configured; its routes then serve empty lists.
func New(sheets *service.SheetService, macros *service.MacroService, users *service.UserService, authenticator auth.Authenticator, refdataCache *refdata.Cache, opts Options, log zerolog.Logger) *API {
	return &API{
		sheets:     sheets,
		macros:     macros,
		users:      users,
		auth:       authenticator,
		refdata:    refdataCache,
		corsOrigin: opts.CORSOrigin,
		log:        log.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the full route table with middleware applied.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.logRequests)
	if a.corsOrigin != "" {
		r.Use(a.cors)
	}
	r.Use(a.authenticate)

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	sheet := r.PathPrefix("/sheet").Subrouter()
	sheet.HandleFunc("/one", a.handleSheetOne).Methods(http.MethodGet)
	sheet.HandleFunc("/all", a.handleSheetAll).Methods(http.MethodGet)
	sheet.HandleFunc("/create", a.handleSheetCreate).Methods(http.MethodPost)
	sheet.HandleFunc("/update", a.handleSheetUpdate).Methods(http.MethodPut)
	sheet.HandleFunc("/delete", a.handleSheetDelete).Methods(http.MethodDelete)

	macro := r.PathPrefix("/macro").Subrouter()
	macro.HandleFunc("/one", a.handleMacroOne).Methods(http.MethodGet)
	macro.HandleFunc("/all", a.handleMacroAll).Methods(http.MethodGet)
	macro.HandleFunc("/create", a.handleMacroCreate).Methods(http.MethodPost)
	macro.HandleFunc("/update", a.handleMacroUpdate).Methods(http.MethodPut)
	macro.HandleFunc("/delete", a.handleMacroDelete).Methods(http.MethodDelete)

	r.HandleFunc("/user", a.handleUserGet).Methods(http.MethodGet)
	r.HandleFunc("/user", a.handleUserUpdate).Methods(http.MethodPatch)
	r.HandleFunc("/user/password-changed", a.handleUserPasswordChanged).Methods(http.MethodPost)

	r.HandleFunc("/tutorial", a.handleTutorials).Methods(http.MethodGet)
	r.HandleFunc("/command", a.handleCommands).Methods(http.MethodGet)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleTutorials(w http.ResponseWriter, r *http.Request) {
	tutorials := []refdata.Tutorial{}
	if a.refdata != nil {
		if cached := a.refdata.Tutorials(); cached != nil {
			tutorials = cached
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tutorials": tutorials})
}

func (a *API) handleCommands(w http.ResponseWriter, r *http.Request) {
	commands := []refdata.Command{}
	if a.refdata != nil {
		if cached := a.refdata.Commands(); cached != nil {
			commands = cached
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
