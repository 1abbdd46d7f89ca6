package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"onenight-backend/internal/models"
)

type ChatHandler struct {
	workspaces Workspaces
}

func NewChatHandler(workspaces Workspaces) *ChatHandler {
	return &ChatHandler{workspaces: workspaces}
}

// SendMessage waits for the partner's reply. Model trouble still yields a
// 200 carrying the apology text.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	reply, err := controllerFor(h.workspaces, r).SendMessage(r.Context(), req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": reply})
}

func (h *ChatHandler) RequestQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := controllerFor(h.workspaces, r).RequestQuiz(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": quiz})
}

func (h *ChatHandler) AnswerQuiz(w http.ResponseWriter, r *http.Request) {
	var req models.QuizAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ack, err := controllerFor(h.workspaces, r).AnswerQuiz(chi.URLParam(r, "id"), req.OptionIndex)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": ack})
}
