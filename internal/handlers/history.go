package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"onenight-backend/internal/middleware"
	"onenight-backend/internal/models"
)

type historyRepository interface {
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.StudyRun, error)
}

type HistoryHandler struct {
	runs historyRepository
}

// NewHistoryHandler accepts a nil repository when no database is configured.
func NewHistoryHandler(runs historyRepository) *HistoryHandler {
	return &HistoryHandler{runs: runs}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"runs":    []models.StudyRun{},
			"enabled": false,
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.ListByWorkspace(r.Context(), middleware.GetWorkspaceID(r.Context()), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study history", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":    runs,
		"enabled": true,
	})
}
