package httpapi

import (
	"errors"
	"net/http"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/service"
	"github.com/grimoire-rpg/grimoire/internal/store"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// writeError maps the service error taxonomy onto HTTP statuses:
// validation 400 with the full error list, auth failures 401, ownership 403,
// missing documents 404, everything else 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := service.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verr.Errors})
		return
	}

	var serr *document.StructuralError
	if errors.As(err, &serr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": serr.Error()})
		return
	}

	switch {
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"title": "Unauthorized", "message": "Invalid token"})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
	case store.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	default:
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func writeMissingParams(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing parameters"})
}
