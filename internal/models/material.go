package models

type MaterialKind string

const (
	MaterialText MaterialKind = "text"
	MaterialFile MaterialKind = "file"
)

// StudyMaterial is one uploaded or entered unit of content. Content holds raw
// text for MaterialText and base64 without a data-URI prefix for MaterialFile.
type StudyMaterial struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Kind     MaterialKind `json:"kind"`
	MIMEType string       `json:"mime_type"`
	Content  string       `json:"content,omitempty"`
}

// MaterialSummary is what the API shows for a material. Payloads can be tens
// of megabytes, so they never leave the server.
type MaterialSummary struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Kind     MaterialKind `json:"kind"`
	MIMEType string       `json:"mime_type"`
	Size     int          `json:"size"`
}

func (m StudyMaterial) Summary() MaterialSummary {
	return MaterialSummary{
		ID:       m.ID,
		Name:     m.Name,
		Kind:     m.Kind,
		MIMEType: m.MIMEType,
		Size:     len(m.Content),
	}
}

type AddTextMaterialRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type AddDataURLMaterialRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}
