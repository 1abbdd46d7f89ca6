package handlers

import (
	"net/http"
)

type SessionHandler struct {
	workspaces Workspaces
}

func NewSessionHandler(workspaces Workspaces) *SessionHandler {
	return &SessionHandler{workspaces: workspaces}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, controllerFor(h.workspaces, r).Snapshot())
}

// Start kicks off processing and answers immediately; the move to studying
// arrives over the websocket.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFor(h.workspaces, r)
	if _, err := ctrl.Start(); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ctrl.Snapshot())
}

func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFor(h.workspaces, r)
	if err := ctrl.Stop(); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *SessionHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFor(h.workspaces, r)
	if _, err := ctrl.TogglePause(); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}
