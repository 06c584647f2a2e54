package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fernhill/hearth/internal/auth"
	"github.com/fernhill/hearth/internal/household"
)

type QuotaHandler struct {
	svc    *household.Service
	logger *slog.Logger
}

func NewQuotaHandler(svc *household.Service, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{svc: svc, logger: logger}
}

type admitRequest struct {
	Deltas map[string]int64 `json:"deltas"`
}

// Admit checks and applies usage counter deltas for the household, denying
// the whole batch when any counter would exceed the plan ceiling.
func (h *QuotaHandler) Admit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.svc.AdmitUsage(auth.UserID(r.Context()), id, req.Deltas); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "admitted"})
}
