package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"onenight-backend/internal/session"
)

type tokenIssuer interface {
	GenerateWorkspaceToken(workspaceID uuid.UUID) (string, error)
}

type WorkspaceHandler struct {
	registry *session.Registry
	tokens   tokenIssuer
}

func NewWorkspaceHandler(registry *session.Registry, tokens tokenIssuer) *WorkspaceHandler {
	return &WorkspaceHandler{registry: registry, tokens: tokens}
}

// Create opens a new workspace in setup and returns the token that binds the
// browser tab to it.
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctrl := h.registry.Create()

	token, err := h.tokens.GenerateWorkspaceToken(ctrl.ID())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue workspace token", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"workspace_id": ctrl.ID(),
		"token":        token,
		"session":      ctrl.Snapshot(),
	})
}
