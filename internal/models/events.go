package models

// WebSocket message types
const (
	EventPhaseChanged      = "phase_changed"
	EventTick              = "tick"
	EventMessageAdded      = "message_added"
	EventMoodChanged       = "mood_changed"
	EventRespondingChanged = "responding_changed"
	EventTreeUpdated       = "tree_updated"
	EventConfigUpdated     = "config_updated"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type PhaseChanged struct {
	Phase            Phase `json:"phase"`
	Paused           bool  `json:"paused"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type Tick struct {
	RemainingSeconds int    `json:"remaining_seconds"`
	Clock            string `json:"clock"`
}

type TreeUpdated struct {
	Tree          *KnowledgeNode `json:"tree"`
	CurrentNodeID string         `json:"current_node_id"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
