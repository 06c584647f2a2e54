package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fernhill/hearth/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as the API error envelope. Unknown errors are logged
// and surfaced as INTERNAL; domain errors pass through with their code and
// detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae := apperr.From(err)
	if ae.Code == apperr.CodeInternal {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, ae.HTTPStatus(), map[string]any{"error": ae})
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}
