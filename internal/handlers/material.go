package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
)

type MaterialHandler struct {
	workspaces     Workspaces
	ingestor       *services.MaterialIngestor
	maxUploadBytes int64
}

func NewMaterialHandler(workspaces Workspaces, ingestor *services.MaterialIngestor, maxUploadBytes int64) *MaterialHandler {
	return &MaterialHandler{workspaces: workspaces, ingestor: ingestor, maxUploadBytes: maxUploadBytes}
}

func (h *MaterialHandler) SupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": services.SupportedExtensions,
	})
}

// Upload ingests every part named "files". Files that cannot be read are
// skipped; the response lists what was added.
func (h *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Upload exceeds the size limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart upload", r))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No files provided", r))
		return
	}

	materials := h.ingestor.IngestFiles(services.FileSourcesFromMultipart(headers))
	h.add(w, r, materials...)
}

func (h *MaterialHandler) AddText(w http.ResponseWriter, r *http.Request) {
	var req models.AddTextMaterialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	material, err := h.ingestor.IngestText(req.Name, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.add(w, r, material)
}

func (h *MaterialHandler) AddDataURL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req models.AddDataURLMaterialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	material, err := h.ingestor.IngestDataURL(req.Name, req.MIMEType, req.Data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.add(w, r, material)
}

func (h *MaterialHandler) add(w http.ResponseWriter, r *http.Request, materials ...models.StudyMaterial) {
	view, err := controllerFor(h.workspaces, r).AddMaterials(materials...)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	added := make([]models.MaterialSummary, len(materials))
	for i, m := range materials {
		added[i] = m.Summary()
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"added":  added,
		"config": view,
	})
}

func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	view, err := controllerFor(h.workspaces, r).RemoveMaterial(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
