package handler

import (
	"log/slog"
	"net/http"

	"github.com/fernhill/hearth/internal/auth"
	"github.com/fernhill/hearth/internal/invite"
)

type InviteHandler struct {
	svc    *invite.Service
	logger *slog.Logger
}

func NewInviteHandler(svc *invite.Service, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{svc: svc, logger: logger}
}

func (h *InviteHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	inv, err := h.svc.Rotate(auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	result, err := h.svc.Revoke(auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InviteHandler) Active(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	inv, err := h.svc.Active(auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
