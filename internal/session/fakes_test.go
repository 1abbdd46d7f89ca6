package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
)

type fakeDigester struct {
	tree    *models.KnowledgeNode
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (d *fakeDigester) Digest(ctx context.Context, _ []models.StudyMaterial, _ int) services.DigestResult {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.release != nil {
		<-d.release
	}
	if d.tree == nil {
		return services.DigestResult{Tree: models.FallbackKnowledgeTree(), Fallback: true}
	}
	return services.DigestResult{Tree: d.tree.Clone()}
}

type fakeConversation struct {
	mu         sync.Mutex
	seeds      []string
	seedGate   chan struct{}
	resets     int
	calls      []string
	chats      []string
	chatReply  string
	chatGate   chan struct{}
	quizResult services.QuizResult
	quizTopics []string
	difficulty []int
}

func (f *fakeConversation) Seed(_ context.Context, _ []models.StudyMaterial, _ models.StudyConfig, topic string) error {
	f.mu.Lock()
	f.seeds = append(f.seeds, topic)
	f.calls = append(f.calls, "seed")
	gate := f.seedGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return nil
}

func (f *fakeConversation) Chat(_ context.Context, text string) services.ChatReply {
	f.mu.Lock()
	f.chats = append(f.chats, text)
	gate := f.chatGate
	reply := f.chatReply
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if reply == "" {
		reply = "Sure, let's go."
	}
	return services.ChatReply{Text: reply}
}

func (f *fakeConversation) Quiz(_ context.Context, topic string, difficulty int) services.QuizResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizTopics = append(f.quizTopics, topic)
	f.difficulty = append(f.difficulty, difficulty)
	return f.quizResult
}

func (f *fakeConversation) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.calls = append(f.calls, "reset")
}

func (f *fakeConversation) seedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeds)
}

func (f *fakeConversation) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeConversation) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.WSMessage
}

func (p *recordingPublisher) Publish(_ context.Context, _ uuid.UUID, msg models.WSMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
}

// phases lists the phase of every phase_changed event, collapsing repeats
// caused by pause toggles.
func (p *recordingPublisher) phases() []models.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Phase
	for _, e := range p.events {
		if e.Type != models.EventPhaseChanged {
			continue
		}
		phase := e.Payload.(models.PhaseChanged).Phase
		if len(out) > 0 && out[len(out)-1] == phase {
			continue
		}
		out = append(out, phase)
	}
	return out
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type finishedRun struct {
	id        uuid.UUID
	outcome   string
	remaining int
}

type fakeRuns struct {
	mu       sync.Mutex
	started  []*models.StudyRun
	finished []finishedRun
}

func (r *fakeRuns) StartRun(_ context.Context, run *models.StudyRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, run)
	return nil
}

func (r *fakeRuns) FinishRun(_ context.Context, id uuid.UUID, outcome string, remaining int, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, finishedRun{id: id, outcome: outcome, remaining: remaining})
	return nil
}

func sampleTree() *models.KnowledgeNode {
	return &models.KnowledgeNode{
		ID:   models.RootNodeID,
		Name: "Cell Biology",
		Children: []*models.KnowledgeNode{
			{ID: "mitosis", Name: "Mitosis", Children: []*models.KnowledgeNode{{ID: "prophase", Name: "Prophase"}}},
			{ID: "meiosis", Name: "Meiosis"},
		},
	}
}

func sampleMaterial() models.StudyMaterial {
	return models.StudyMaterial{ID: "1-0", Name: "notes.txt", Kind: models.MaterialText, MIMEType: "text/plain", Content: "Cells divide."}
}
