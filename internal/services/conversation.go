package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"onenight-backend/internal/metrics"
	"onenight-backend/internal/models"
)

const (
	notReadyReply       = "I'm not ready yet."
	emptyReply          = "..."
	chatApologyReply    = "Sorry, I'm having trouble processing that right now."
	sessionMissingReply = "Chat session not initialized."

	quizOptionCount = 4
)

var (
	ErrNoConversation = errors.New("conversation session not initialized")
	errQuizShape      = errors.New("quiz reply does not match the expected shape")
)

// ChatReply is the outcome of one chat turn. Text is always displayable.
type ChatReply struct {
	Text     string
	Fallback bool
	Err      error
}

// QuizResult is the outcome of a quiz request. Message is always displayable;
// it is a text message when the model's reply could not be used.
type QuizResult struct {
	Message  models.ChatMessage
	Fallback bool
	Err      error
}

// ConversationClient owns at most one chat session with the model. Seed
// replaces it, Reset discards it. Turns on a session are serialized.
type ConversationClient struct {
	model   LanguageModel
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	session *conversation
}

type conversation struct {
	chat ChatSession
	turn sync.Mutex
}

// send runs one turn with exclusive access to the session.
func (c *conversation) send(ctx context.Context, parts ...genai.Part) (string, error) {
	c.turn.Lock()
	defer c.turn.Unlock()
	return c.chat.Send(ctx, parts...)
}

func NewConversationClient(model LanguageModel, m *metrics.Metrics, logger *zap.Logger) *ConversationClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationClient{
		model:   model,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *ConversationClient) active() *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Reset discards the current session, if any.
func (c *ConversationClient) Reset() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Seed starts a fresh session bound to the configured persona and hands it the
// materials. The model's acknowledgement is discarded. A failed seed is
// logged and returned, but the session stays in place so later turns can
// still be attempted.
func (c *ConversationClient) Seed(ctx context.Context, materials []models.StudyMaterial, cfg models.StudyConfig, topic string) error {
	start := time.Now()

	session := &conversation{
		chat: c.model.StartChat(ModelSpec{SystemInstruction: personaInstruction(cfg, topic)}),
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	err := c.seed(ctx, session, materials, topic)
	if err != nil {
		c.logger.Error("failed to init chat with files", zap.Error(err))
		c.metrics.ObserveModelRequest("seed", metrics.OutcomeError, time.Since(start))
		return err
	}

	c.metrics.ObserveModelRequest("seed", metrics.OutcomeOK, time.Since(start))
	return nil
}

func (c *ConversationClient) seed(ctx context.Context, session *conversation, materials []models.StudyMaterial, topic string) error {
	parts, err := materialParts(materials)
	if err != nil {
		return err
	}
	parts = append(parts, genai.Text(fmt.Sprintf(
		"Here are the study materials for our session on %q. Please read them and confirm you are ready.", topic)))

	_, err = session.send(ctx, parts...)
	return err
}

func personaInstruction(cfg models.StudyConfig, topic string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are %s, the user's study partner.\n", cfg.PartnerName))
	b.WriteString(fmt.Sprintf("You are currently studying: %q.\n", topic))
	b.WriteString(fmt.Sprintf("Your personality is: %s.\n", cfg.Personality))
	b.WriteString(fmt.Sprintf("Your IQ is estimated at %d.\n\n", cfg.Intelligence))
	b.WriteString("You have access to the study materials provided in the context.\n")
	b.WriteString("Use them to answer questions, ask questions, and guide the user.\n\n")
	b.WriteString(responseStyle(cfg.Intelligence))
	b.WriteString("\n\nKeep responses relatively concise (under 100 words) unless explaining a complex topic.")
	return b.String()
}

func responseStyle(intelligence int) string {
	if intelligence > 140 {
		return "Your IQ is high, so be very precise and insightful."
	}
	return "Your IQ is average, so be relatable and helpful."
}

// Chat sends text as the next turn and returns the partner's reply.
func (c *ConversationClient) Chat(ctx context.Context, text string) ChatReply {
	session := c.active()
	if session == nil {
		return ChatReply{Text: notReadyReply, Fallback: true, Err: ErrNoConversation}
	}

	start := time.Now()
	reply, err := session.send(ctx, genai.Text(text))
	if err != nil {
		c.logger.Error("chat turn failed", zap.Error(err))
		c.metrics.ObserveModelRequest("chat", metrics.OutcomeFallback, time.Since(start))
		return ChatReply{Text: chatApologyReply, Fallback: true, Err: err}
	}

	c.metrics.ObserveModelRequest("chat", metrics.OutcomeOK, time.Since(start))
	if strings.TrimSpace(reply) == "" {
		return ChatReply{Text: emptyReply}
	}
	return ChatReply{Text: reply}
}

// Quiz asks the partner for one multiple-choice question on topic, pitched by
// difficulty (the configured intelligence).
func (c *ConversationClient) Quiz(ctx context.Context, topic string, difficulty int) QuizResult {
	session := c.active()
	if session == nil {
		return QuizResult{
			Message:  models.NewTextMessage(models.SenderPartner, sessionMissingReply, c.now()),
			Fallback: true,
			Err:      ErrNoConversation,
		}
	}

	start := time.Now()
	msg, err := c.quiz(ctx, session, topic, difficulty)
	if err != nil {
		c.logger.Warn("quiz generation fell back to open question", zap.Error(err), zap.String("topic", topic))
		c.metrics.ObserveModelRequest("quiz", metrics.OutcomeFallback, time.Since(start))
		return QuizResult{Message: reflectionMessage(topic, c.now()), Fallback: true, Err: err}
	}

	c.metrics.ObserveModelRequest("quiz", metrics.OutcomeOK, time.Since(start))
	return QuizResult{Message: msg}
}

func (c *ConversationClient) quiz(ctx context.Context, session *conversation, topic string, difficulty int) (models.ChatMessage, error) {
	reply, err := session.send(ctx, genai.Text(quizPrompt(topic, difficulty)))
	if err != nil {
		return models.ChatMessage{}, err
	}
	return parseQuizReply(reply, c.now())
}

func difficultyDescriptor(difficulty int) string {
	switch {
	case difficulty > 130:
		return "highly complex and nuanced"
	case difficulty < 100:
		return "straightforward and basic"
	default:
		return "moderate"
	}
}

func quizPrompt(topic string, difficulty int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Create a single multiple-choice question based on the topic: %q and the materials we have.\n", topic))
	b.WriteString(fmt.Sprintf("The question should be %s.\n", difficultyDescriptor(difficulty)))
	b.WriteString(`Return JSON format: { "question": "...", "options": ["A", "B", "C", "D"], "correctIndex": 0 }` + "\n")
	b.WriteString("DO NOT output markdown formatting like ```json, just the raw JSON string.")
	return b.String()
}

type quizReply struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex"`
}

func parseQuizReply(raw string, at time.Time) (models.ChatMessage, error) {
	var reply quizReply
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &reply); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to parse quiz reply: %w", err)
	}

	if strings.TrimSpace(reply.Question) == "" {
		return models.ChatMessage{}, fmt.Errorf("missing question: %w", errQuizShape)
	}
	if len(reply.Options) != quizOptionCount {
		return models.ChatMessage{}, fmt.Errorf("got %d options: %w", len(reply.Options), errQuizShape)
	}
	if reply.CorrectIndex == nil || *reply.CorrectIndex < 0 || *reply.CorrectIndex >= len(reply.Options) {
		return models.ChatMessage{}, fmt.Errorf("correct index out of range: %w", errQuizShape)
	}

	return models.NewQuizMessage(reply.Question, reply.Options, *reply.CorrectIndex, at), nil
}

func reflectionMessage(topic string, at time.Time) models.ChatMessage {
	return models.NewTextMessage(models.SenderPartner,
		fmt.Sprintf("Let's review %s. What do you think is the most important takeaway?", topic), at)
}
