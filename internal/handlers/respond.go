package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"onenight-backend/internal/middleware"
	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
	"onenight-backend/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

// sessionErrors maps controller preconditions to HTTP responses.
var sessionErrors = []struct {
	err    error
	status int
	code   string
	field  string
}{
	{session.ErrNoMaterials, http.StatusBadRequest, "VALIDATION_ERROR", "materials"},
	{session.ErrEmptyMessage, http.StatusBadRequest, "VALIDATION_ERROR", "message"},
	{session.ErrInvalidOption, http.StatusBadRequest, "VALIDATION_ERROR", "option_index"},
	{session.ErrNotQuiz, http.StatusBadRequest, "NOT_A_QUIZ", ""},
	{session.ErrWrongPhase, http.StatusConflict, "WRONG_PHASE", ""},
	{session.ErrConfigLocked, http.StatusConflict, "CONFIG_LOCKED", ""},
	{session.ErrPaused, http.StatusConflict, "PAUSED", ""},
	{session.ErrSessionReset, http.StatusConflict, "SESSION_RESET", ""},
	{session.ErrUnknownMessage, http.StatusNotFound, "NOT_FOUND", ""},
	{session.ErrUnknownNode, http.StatusNotFound, "NOT_FOUND", ""},
	{session.ErrUnknownMaterial, http.StatusNotFound, "NOT_FOUND", ""},
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range sessionErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		if m.field != "" {
			writeJSON(w, m.status, errorRespWithFields(m.code, "Validation failed", map[string]string{m.field: err.Error()}, r))
			return
		}
		writeJSON(w, m.status, errorResp(m.code, err.Error(), r))
		return
	}

	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
}

// Workspaces resolves the controller behind an authenticated request.
type Workspaces interface {
	GetOrCreate(id uuid.UUID) *session.Controller
}

func controllerFor(ws Workspaces, r *http.Request) *session.Controller {
	return ws.GetOrCreate(middleware.GetWorkspaceID(r.Context()))
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
