package services

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"go.uber.org/zap"

	"onenight-backend/internal/metrics"
	"onenight-backend/internal/models"
)

const (
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// maxInlineBytes is the largest file Gemini accepts as inline data.
	maxInlineBytes = 20 << 20
)

// SupportedExtensions is advisory: the ingestor accepts anything.
var SupportedExtensions = []map[string]string{
	{"extension": ".pdf", "mime_type": mimePDF, "description": "PDF Document"},
	{"extension": ".docx", "mime_type": mimeDOCX, "description": "Word Document"},
	{"extension": ".txt", "mime_type": mimeText, "description": "Plain Text"},
	{"extension": ".md", "mime_type": "text/markdown", "description": "Markdown"},
	{"extension": ".json", "mime_type": "application/json", "description": "JSON"},
}

// FileSource is one user-selected file awaiting ingestion.
type FileSource struct {
	Name         string
	DeclaredType string
	Open         func() (io.ReadCloser, error)
}

func FileSourcesFromMultipart(headers []*multipart.FileHeader) []FileSource {
	sources := make([]FileSource, len(headers))
	for i, fh := range headers {
		fh := fh
		sources[i] = FileSource{
			Name:         fh.Filename,
			DeclaredType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}
	return sources
}

// MaterialIngestor normalizes uploads into StudyMaterial values.
type MaterialIngestor struct {
	extract        *FileExtractService
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time
	maxInlineBytes int
}

func NewMaterialIngestor(extract *FileExtractService, m *metrics.Metrics, logger *zap.Logger) *MaterialIngestor {
	if extract == nil {
		extract = NewFileExtractService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialIngestor{
		extract:        extract,
		metrics:        m,
		logger:         logger,
		now:            time.Now,
		maxInlineBytes: maxInlineBytes,
	}
}

// IngestFiles reads every file in the batch. A file that cannot be read is
// logged and skipped; the rest of the batch still comes back.
func (i *MaterialIngestor) IngestFiles(files []FileSource) []models.StudyMaterial {
	stamp := i.now().UnixNano()
	materials := make([]models.StudyMaterial, 0, len(files))

	for idx, file := range files {
		data, err := readSource(file)
		if err != nil {
			i.logger.Error("error reading file", zap.String("file", file.Name), zap.Error(err))
			i.metrics.MaterialIngested("skipped")
			continue
		}
		materials = append(materials, i.fromBytes(batchID(stamp, idx), file.Name, file.DeclaredType, data))
	}

	return materials
}

func readSource(file FileSource) ([]byte, error) {
	if file.Open == nil {
		return nil, fmt.Errorf("no reader for %s", file.Name)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// IngestText wraps typed or pasted text as a material.
func (i *MaterialIngestor) IngestText(name, text string) (models.StudyMaterial, error) {
	if strings.TrimSpace(text) == "" {
		return models.StudyMaterial{}, &ValidationError{Fields: map[string]string{"text": "Text is required"}}
	}
	if strings.TrimSpace(name) == "" {
		name = "Notes"
	}

	i.metrics.MaterialIngested("ok")
	return models.StudyMaterial{
		ID:       batchID(i.now().UnixNano(), 0),
		Name:     name,
		Kind:     models.MaterialText,
		MIMEType: mimeText,
		Content:  text,
	}, nil
}

// IngestDataURL accepts a browser FileReader result. The data-URI prefix is
// optional; when present and mimeType is empty, its media type is used.
func (i *MaterialIngestor) IngestDataURL(name, mimeType, data string) (models.StudyMaterial, error) {
	payload, prefixType := stripDataURIPrefix(data)
	if mimeType == "" {
		mimeType = prefixType
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(decoded) == 0 {
		return models.StudyMaterial{}, &ValidationError{Fields: map[string]string{"data": "Data must be non-empty base64"}}
	}
	if strings.TrimSpace(name) == "" {
		return models.StudyMaterial{}, &ValidationError{Fields: map[string]string{"name": "Name is required"}}
	}

	return i.fromBytes(batchID(i.now().UnixNano(), 0), name, mimeType, decoded), nil
}

func (i *MaterialIngestor) fromBytes(id, name, declaredType string, data []byte) models.StudyMaterial {
	mimeType := resolveMIMEType(declaredType, name)

	if text, ok := i.convertToText(name, mimeType, data); ok {
		i.metrics.MaterialIngested("converted")
		return models.StudyMaterial{
			ID:       id,
			Name:     name,
			Kind:     models.MaterialText,
			MIMEType: mimeText,
			Content:  text,
		}
	}

	i.metrics.MaterialIngested("ok")
	return models.StudyMaterial{
		ID:       id,
		Name:     name,
		Kind:     models.MaterialFile,
		MIMEType: mimeType,
		Content:  base64.StdEncoding.EncodeToString(data),
	}
}

// convertToText extracts text from files the model cannot read inline: DOCX
// documents, and PDFs over the inline size limit. On failure the file is
// kept as binary.
func (i *MaterialIngestor) convertToText(name, mimeType string, data []byte) (string, bool) {
	var (
		text string
		err  error
	)
	switch {
	case mimeType == mimeDOCX || strings.HasSuffix(strings.ToLower(name), ".docx"):
		text, err = i.extract.ExtractDOCX(data)
	case mimeType == mimePDF && len(data) > i.maxInlineBytes:
		text, err = i.extract.ExtractPDF(data)
	default:
		return "", false
	}

	if err != nil {
		i.logger.Warn("text extraction failed, keeping file as binary",
			zap.String("file", name), zap.String("mime_type", mimeType), zap.Error(err))
		return "", false
	}
	return text, true
}

// resolveMIMEType falls back to application/pdf for .pdf names and
// text/plain otherwise when the declared type is missing. Browsers send
// application/octet-stream when they do not know, which counts as missing.
func resolveMIMEType(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if strings.HasSuffix(name, ".pdf") {
		return mimePDF
	}
	return mimeText
}

// stripDataURIPrefix removes a "data:<type>;base64," prefix and returns the
// payload with the media type it declared.
func stripDataURIPrefix(s string) (payload, mediaType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	comma := strings.Index(s, ",")
	if comma < 0 {
		return s, ""
	}
	header := strings.TrimPrefix(s[:comma], "data:")
	mediaType, _, _ = strings.Cut(header, ";")
	return s[comma+1:], mediaType
}

func batchID(stamp int64, index int) string {
	return fmt.Sprintf("%d-%d", stamp, index)
}
