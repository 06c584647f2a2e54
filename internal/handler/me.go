package handler

import (
	"log/slog"
	"net/http"

	"github.com/fernhill/hearth/internal/auth"
	"github.com/fernhill/hearth/internal/household"
)

type MeHandler struct {
	svc    *household.Service
	logger *slog.Logger
}

func NewMeHandler(svc *household.Service, logger *slog.Logger) *MeHandler {
	return &MeHandler{svc: svc, logger: logger}
}

// Membership returns the caller's current stint, or membership: null when
// they belong to no household.
func (h *MeHandler) Membership(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.CurrentMembership(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"membership": m})
}

func (h *MeHandler) Plan(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.CurrentPlan(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
