package handlers

import (
	"net/http"

	"onenight-backend/internal/models"
)

type ConfigHandler struct {
	workspaces Workspaces
}

func NewConfigHandler(workspaces Workspaces) *ConfigHandler {
	return &ConfigHandler{workspaces: workspaces}
}

func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := controllerFor(h.workspaces, r).UpdateConfig(req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ConfigHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAvatarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := controllerFor(h.workspaces, r).UpdateAvatar(req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
