package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"onenight-backend/internal/models"
)

type MapHandler struct {
	workspaces Workspaces
}

func NewMapHandler(workspaces Workspaces) *MapHandler {
	return &MapHandler{workspaces: workspaces}
}

func (h *MapHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	var req models.SetCurrentNodeRequest
	if err := decodeJSON(r, &req); err != nil || req.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "node_id is required", r))
		return
	}

	ctrl := controllerFor(h.workspaces, r)
	if err := ctrl.FocusNode(req.NodeID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeTree(w, ctrl.Snapshot())
}

func (h *MapHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFor(h.workspaces, r)
	if err := ctrl.CompleteNode(chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeTree(w, ctrl.Snapshot())
}

func writeTree(w http.ResponseWriter, snap models.SessionSnapshot) {
	writeJSON(w, http.StatusOK, models.TreeUpdated{
		Tree:          snap.Tree,
		CurrentNodeID: snap.CurrentNodeID,
	})
}
