package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"collections/internal/profiles"
)

const maxProfileSearchLength = 100

// AdminHandler manages profiles. Routes sit behind requireAdmin.
type AdminHandler struct {
	service *profiles.Service
	logger  *slog.Logger
}

// NewAdminHandler creates a handler.
func NewAdminHandler(service *profiles.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// ListProfiles returns profiles, newest first, optionally filtered by ?q=.
func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(search) > maxProfileSearchLength {
		writeError(w, http.StatusBadRequest, "search query too long")
		return
	}

	list, err := h.service.List(r.Context(), search)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": list})
}

// UpdateRole sets a profile's role.
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var payload struct {
		Role profiles.Role `json:"role"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	if id == requestUserID(r) && payload.Role != profiles.RoleAdmin {
		writeError(w, http.StatusBadRequest, "cannot remove your own admin role")
		return
	}

	updated, err := h.service.SetRole(r.Context(), id, payload.Role)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.logger.Info("profile role updated", "profile_id", id, "role", updated.Role, "by", requestUserID(r))
	writeJSON(w, http.StatusOK, updated)
}

// ToggleRole flips a profile between user and admin.
func (h *AdminHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if id == requestUserID(r) {
		writeError(w, http.StatusBadRequest, "cannot remove your own admin role")
		return
	}

	updated, err := h.service.ToggleRole(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.logger.Info("profile role toggled", "profile_id", id, "role", updated.Role, "by", requestUserID(r))
	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, profiles.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("profile service error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}
