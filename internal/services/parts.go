package services

import (
	"encoding/base64"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"onenight-backend/internal/models"
)

// materialParts turns materials into model content parts: text materials as
// text parts, files as inline blobs tagged with their MIME type.
func materialParts(materials []models.StudyMaterial) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(materials)+1)
	for _, m := range materials {
		if m.Kind == models.MaterialText {
			parts = append(parts, genai.Text(m.Content))
			continue
		}

		data, err := base64.StdEncoding.DecodeString(m.Content)
		if err != nil {
			return nil, fmt.Errorf("material %s (%s) is not valid base64: %w", m.ID, m.Name, err)
		}
		mimeType := m.MIMEType
		if mimeType == "" {
			mimeType = "application/pdf"
		}
		parts = append(parts, genai.Blob{MIMEType: mimeType, Data: data})
	}
	return parts, nil
}
