package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseProcessing Phase = "processing"
	PhaseStudying   Phase = "studying"
	PhaseFinished   Phase = "finished"
)

type PartnerMood string

const (
	MoodNeutral  PartnerMood = "neutral"
	MoodHappy    PartnerMood = "happy"
	MoodThinking PartnerMood = "thinking"
	MoodConfused PartnerMood = "confused"
	MoodProud    PartnerMood = "proud"
)

// SessionSnapshot is everything the browser needs to render a workspace.
type SessionSnapshot struct {
	WorkspaceID      uuid.UUID      `json:"workspace_id"`
	Phase            Phase          `json:"phase"`
	Paused           bool           `json:"paused"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Clock            string         `json:"clock"`
	Responding       bool           `json:"responding"`
	Mood             PartnerMood    `json:"mood"`
	Config           ConfigView     `json:"config"`
	Tree             *KnowledgeNode `json:"tree"`
	CurrentNodeID    string         `json:"current_node_id"`
	Messages         []ChatMessage  `json:"messages"`
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// StudyRun is the persisted record of one study session.
type StudyRun struct {
	ID               uuid.UUID       `json:"id"`
	WorkspaceID      uuid.UUID       `json:"workspace_id"`
	PartnerName      string          `json:"partner_name"`
	Topic            string          `json:"topic"`
	DurationMinutes  int             `json:"duration_minutes"`
	Intelligence     int             `json:"intelligence"`
	MaterialCount    int             `json:"material_count"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	Outcome          *string         `json:"outcome,omitempty"` // "finished" | "stopped"
	SecondsRemaining *int            `json:"seconds_remaining,omitempty"`
	TreeJSON         json.RawMessage `json:"tree"`
}

const (
	RunOutcomeFinished = "finished"
	RunOutcomeStopped  = "stopped"
)
