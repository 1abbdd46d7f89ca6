// Package session drives one workspace's study session: the phase machine,
// the countdown clock, chat and quiz routing, partner mood and knowledge-map
// navigation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onenight-backend/internal/metrics"
	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
)

var (
	ErrNoMaterials     = errors.New("add at least one study material before starting")
	ErrWrongPhase      = errors.New("action not allowed in the current phase")
	ErrConfigLocked    = errors.New("configuration can only change during setup")
	ErrPaused          = errors.New("session is paused")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrUnknownMessage  = errors.New("message not found")
	ErrNotQuiz         = errors.New("message is not a quiz")
	ErrInvalidOption   = errors.New("option index out of range")
	ErrUnknownNode     = errors.New("knowledge node not found")
	ErrUnknownMaterial = errors.New("material not found")
	ErrSessionReset    = errors.New("session was reset before the reply arrived")
)

const (
	greetingID = "init"

	answerCorrect   = "That's correct! Well done."
	answerIncorrect = "Not quite. Let's review that."

	recordTimeout = 5 * time.Second
)

// Digester turns materials into a knowledge tree. It always resolves.
type Digester interface {
	Digest(ctx context.Context, materials []models.StudyMaterial, durationMinutes int) services.DigestResult
}

// Conversation is the workspace's chat session with the study partner.
type Conversation interface {
	Seed(ctx context.Context, materials []models.StudyMaterial, cfg models.StudyConfig, topic string) error
	Chat(ctx context.Context, text string) services.ChatReply
	Quiz(ctx context.Context, topic string, difficulty int) services.QuizResult
	Reset()
}

// Publisher delivers state-change events to the workspace's browser tabs.
type Publisher interface {
	Publish(ctx context.Context, workspaceID uuid.UUID, msg models.WSMessage)
}

// RunRecorder persists the history of study runs.
type RunRecorder interface {
	StartRun(ctx context.Context, run *models.StudyRun) error
	FinishRun(ctx context.Context, runID uuid.UUID, outcome string, secondsRemaining int, endedAt time.Time) error
}

// Dependencies wires a Controller. Digester and Conversation are required.
type Dependencies struct {
	Digester     Digester
	Conversation Conversation
	Events       Publisher
	Runs         RunRecorder
	Metrics      *metrics.Metrics
	Logger       *zap.Logger

	// TickInterval is the countdown resolution. Zero disables the
	// background ticker; the clock then only moves through Tick.
	TickInterval time.Duration
	Now          func() time.Time
}

type Controller struct {
	id           uuid.UUID
	digester     Digester
	conv         Conversation
	events       Publisher
	runs         RunRecorder
	metrics      *metrics.Metrics
	logger       *zap.Logger
	tickInterval time.Duration
	now          func() time.Time

	// seeding orders Seed calls across runs so a stale run cannot replace
	// the session of a newer one.
	seeding sync.Mutex

	mu               sync.Mutex
	phase            models.Phase
	paused           bool
	remaining        int
	inflight         int
	mood             models.PartnerMood
	config           models.StudyConfig
	tree             *models.KnowledgeNode
	currentNode      string
	messages         []models.ChatMessage
	epoch            uint64
	cancelProcessing context.CancelFunc
	timerGen         uint64
	stopTimer        context.CancelFunc
	runID            uuid.UUID
	lastActive       time.Time
}

func NewController(id uuid.UUID, deps Dependencies) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}

	c := &Controller{
		id:           id,
		digester:     deps.Digester,
		conv:         deps.Conversation,
		events:       deps.Events,
		runs:         deps.Runs,
		metrics:      deps.Metrics,
		logger:       deps.Logger.With(zap.String("workspace_id", id.String())),
		tickInterval: deps.TickInterval,
		now:          deps.Now,
		phase:        models.PhaseSetup,
		mood:         models.MoodNeutral,
		config:       models.DefaultStudyConfig(),
	}
	c.lastActive = c.now()
	return c
}

func (c *Controller) ID() uuid.UUID { return c.id }

// LastActive reports when the workspace last saw a request.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) touchLocked() {
	c.lastActive = c.now()
}

// Snapshot returns a copy of everything the browser renders.
func (c *Controller) Snapshot() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.SessionSnapshot {
	return models.SessionSnapshot{
		WorkspaceID:      c.id,
		Phase:            c.phase,
		Paused:           c.paused,
		RemainingSeconds: c.remaining,
		Clock:            models.FormatClock(c.remaining),
		Responding:       c.inflight > 0,
		Mood:             c.mood,
		Config:           c.config.View(),
		Tree:             c.tree.Clone(),
		CurrentNodeID:    c.currentNode,
		Messages:         append([]models.ChatMessage{}, c.messages...),
	}
}

// UpdateConfig applies the non-nil fields of req. Only allowed in setup.
func (c *Controller) UpdateConfig(req models.UpdateConfigRequest) (models.ConfigView, error) {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseSetup {
		c.mu.Unlock()
		return models.ConfigView{}, ErrConfigLocked
	}

	next := c.config.Clone()
	if req.PartnerName != nil {
		next.PartnerName = strings.TrimSpace(*req.PartnerName)
	}
	if req.Intelligence != nil {
		next.Intelligence = *req.Intelligence
	}
	if req.Personality != nil {
		next.Personality = strings.TrimSpace(*req.Personality)
	}
	if req.DurationMinutes != nil {
		next.DurationMinutes = *req.DurationMinutes
	}
	if fields := next.Validate(); fields != nil {
		c.mu.Unlock()
		return models.ConfigView{}, &services.ValidationError{Fields: fields}
	}

	c.config = next
	view := c.config.View()
	c.mu.Unlock()

	c.publish(models.WSMessage{Type: models.EventConfigUpdated, Payload: view})
	return view, nil
}

// UpdateAvatar sets the partner image or video. Setting one clears the
// other; sending neither clears both.
func (c *Controller) UpdateAvatar(req models.UpdateAvatarRequest) (models.ConfigView, error) {
	if req.Image != nil && req.Video != nil {
		return models.ConfigView{}, &services.ValidationError{Fields: map[string]string{
			"avatar": "Provide either an image or a video, not both",
		}}
	}

	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseSetup {
		c.mu.Unlock()
		return models.ConfigView{}, ErrConfigLocked
	}
	switch {
	case req.Image != nil:
		c.config.SetPartnerImage(*req.Image)
	case req.Video != nil:
		c.config.SetPartnerVideo(*req.Video)
	default:
		c.config.ClearAvatar()
	}
	view := c.config.View()
	c.mu.Unlock()

	c.publish(models.WSMessage{Type: models.EventConfigUpdated, Payload: view})
	return view, nil
}

// AddMaterials appends ingested materials to the draft config.
func (c *Controller) AddMaterials(materials ...models.StudyMaterial) (models.ConfigView, error) {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseSetup {
		c.mu.Unlock()
		return models.ConfigView{}, ErrConfigLocked
	}
	c.config.Materials = append(c.config.Materials, materials...)
	view := c.config.View()
	c.mu.Unlock()

	c.publish(models.WSMessage{Type: models.EventConfigUpdated, Payload: view})
	return view, nil
}

func (c *Controller) RemoveMaterial(id string) (models.ConfigView, error) {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseSetup {
		c.mu.Unlock()
		return models.ConfigView{}, ErrConfigLocked
	}
	if !c.config.RemoveMaterial(id) {
		c.mu.Unlock()
		return models.ConfigView{}, ErrUnknownMaterial
	}
	view := c.config.View()
	c.mu.Unlock()

	c.publish(models.WSMessage{Type: models.EventConfigUpdated, Payload: view})
	return view, nil
}

// Start moves setup to processing and runs the digest and seed in the
// background. The returned channel closes once processing is over, whether
// it reached studying or was abandoned by Stop.
func (c *Controller) Start() (<-chan struct{}, error) {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseSetup {
		c.mu.Unlock()
		return nil, ErrWrongPhase
	}
	if len(c.config.Materials) == 0 {
		c.mu.Unlock()
		return nil, ErrNoMaterials
	}
	if fields := c.config.Validate(); fields != nil {
		c.mu.Unlock()
		return nil, &services.ValidationError{Fields: fields}
	}

	cfg := c.config.Clone()
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelProcessing = cancel
	c.phase = models.PhaseProcessing
	c.paused = false
	c.mood = models.MoodThinking
	c.messages = nil
	c.tree = nil
	c.currentNode = ""
	events := []models.WSMessage{c.phaseEventLocked(), c.moodEventLocked()}
	c.mu.Unlock()

	c.publish(events...)
	c.logger.Info("study session processing",
		zap.Int("materials", len(cfg.Materials)),
		zap.Int("duration_minutes", cfg.DurationMinutes),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		c.process(ctx, epoch, cfg)
	}()
	return done, nil
}

func (c *Controller) process(ctx context.Context, epoch uint64, cfg models.StudyConfig) {
	result := c.digester.Digest(ctx, cfg.Materials, cfg.DurationMinutes)
	if result.Fallback {
		c.logger.Warn("digest fell back to placeholder tree", zap.Error(result.Err))
	}
	tree := result.Tree
	if tree == nil {
		tree = models.FallbackKnowledgeTree()
	}

	c.seeding.Lock()
	defer c.seeding.Unlock()

	if !c.isCurrent(epoch) {
		return
	}
	if err := c.conv.Seed(ctx, cfg.Materials, cfg, tree.Name); err != nil {
		c.logger.Warn("conversation seed failed, continuing without acknowledgement", zap.Error(err))
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.conv.Reset()
		return
	}

	now := c.now()
	c.cancelProcessing = nil
	c.phase = models.PhaseStudying
	c.paused = false
	c.remaining = cfg.DurationMinutes * 60
	c.tree = tree
	c.currentNode = models.RootNodeID
	c.mood = models.MoodHappy
	greeting := models.NewTextMessage(models.SenderPartner, greetingText(cfg.PartnerName, tree.Name), now)
	greeting.ID = greetingID
	c.messages = append(c.messages, greeting)
	c.restartTimerLocked()

	run := &models.StudyRun{
		ID:              uuid.New(),
		WorkspaceID:     c.id,
		PartnerName:     cfg.PartnerName,
		Topic:           tree.Name,
		DurationMinutes: cfg.DurationMinutes,
		Intelligence:    cfg.Intelligence,
		MaterialCount:   len(cfg.Materials),
		StartedAt:       now,
	}
	if data, err := json.Marshal(tree); err == nil {
		run.TreeJSON = data
	}
	c.runID = run.ID

	events := []models.WSMessage{
		c.treeEventLocked(),
		{Type: models.EventMessageAdded, Payload: greeting},
		c.moodEventLocked(),
		c.phaseEventLocked(),
	}
	c.mu.Unlock()

	c.publish(events...)
	c.metrics.SessionStarted()
	c.logger.Info("study session started", zap.String("topic", tree.Name), zap.Int("nodes", tree.Count()))
	c.startRun(run)
}

func greetingText(name, topic string) string {
	return fmt.Sprintf("Hi! I'm %s. I've read through your documents. The main topic seems to be \"%s\". I've mapped it out below. Ready to dive in?", name, topic)
}

func (c *Controller) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// Stop returns to setup from any other phase, discarding the conversation,
// messages, tree, timer and draft config. Stop in setup does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.touchLocked()
	if c.phase == models.PhaseSetup {
		c.mu.Unlock()
		return nil
	}

	prev := c.phase
	runID := c.runID
	remaining := c.remaining

	c.epoch++
	if c.cancelProcessing != nil {
		c.cancelProcessing()
		c.cancelProcessing = nil
	}
	c.phase = models.PhaseSetup
	c.paused = false
	c.remaining = 0
	c.inflight = 0
	c.mood = models.MoodNeutral
	c.config = models.DefaultStudyConfig()
	c.tree = nil
	c.currentNode = ""
	c.messages = nil
	c.runID = uuid.Nil
	c.restartTimerLocked()

	events := []models.WSMessage{
		c.phaseEventLocked(),
		c.moodEventLocked(),
		c.treeEventLocked(),
		{Type: models.EventConfigUpdated, Payload: c.config.View()},
	}
	c.mu.Unlock()

	c.conv.Reset()
	c.publish(events...)
	c.logger.Info("study session stopped", zap.String("from_phase", string(prev)))

	if prev == models.PhaseStudying {
		c.metrics.SessionEnded(models.RunOutcomeStopped)
		c.finishRun(runID, models.RunOutcomeStopped, remaining)
	}
	return nil
}

// TogglePause flips the pause flag in studying or finished and reports the
// new value.
func (c *Controller) TogglePause() (bool, error) {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseStudying && c.phase != models.PhaseFinished {
		c.mu.Unlock()
		return false, ErrWrongPhase
	}
	c.paused = !c.paused
	paused := c.paused
	c.restartTimerLocked()
	event := c.phaseEventLocked()
	c.mu.Unlock()

	c.publish(event)
	return paused, nil
}

// Close cancels background work. The registry calls it on eviction.
func (c *Controller) Close() {
	c.mu.Lock()
	c.epoch++
	if c.cancelProcessing != nil {
		c.cancelProcessing()
		c.cancelProcessing = nil
	}
	c.timerGen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.mu.Unlock()
	c.conv.Reset()
}

// interactiveLocked checks the preconditions shared by chat, quiz and
// answers.
func (c *Controller) interactiveLocked() error {
	if c.phase != models.PhaseStudying && c.phase != models.PhaseFinished {
		return ErrWrongPhase
	}
	if c.paused {
		return ErrPaused
	}
	return nil
}

func (c *Controller) beginResponseLocked() []models.WSMessage {
	c.inflight++
	c.mood = models.MoodThinking
	return []models.WSMessage{c.respondingEventLocked(), c.moodEventLocked()}
}

func (c *Controller) endResponseLocked(mood models.PartnerMood) []models.WSMessage {
	if c.inflight > 0 {
		c.inflight--
	}
	c.mood = mood
	return []models.WSMessage{c.respondingEventLocked(), c.moodEventLocked()}
}

// SendMessage appends the user's text, asks the partner and appends the
// reply. Model failures come back as an apology message, not an error.
func (c *Controller) SendMessage(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	c.touchLocked()
	if err := c.interactiveLocked(); err != nil {
		c.mu.Unlock()
		return models.ChatMessage{}, err
	}
	userMsg := models.NewTextMessage(models.SenderUser, text, c.now())
	c.messages = append(c.messages, userMsg)
	epoch := c.epoch
	events := append([]models.WSMessage{{Type: models.EventMessageAdded, Payload: userMsg}}, c.beginResponseLocked()...)
	c.mu.Unlock()
	c.publish(events...)

	reply := c.conv.Chat(ctx, text)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionReset
	}
	msg := models.NewTextMessage(models.SenderPartner, reply.Text, c.now())
	c.messages = append(c.messages, msg)
	events = append([]models.WSMessage{{Type: models.EventMessageAdded, Payload: msg}}, c.endResponseLocked(models.MoodHappy)...)
	c.mu.Unlock()

	c.publish(events...)
	return msg, nil
}

// RequestQuiz asks the partner for a multiple-choice question on the
// digested topic at the configured intelligence.
func (c *Controller) RequestQuiz(ctx context.Context) (models.ChatMessage, error) {
	c.mu.Lock()
	c.touchLocked()
	if err := c.interactiveLocked(); err != nil {
		c.mu.Unlock()
		return models.ChatMessage{}, err
	}
	topic := c.tree.Name
	difficulty := c.config.Intelligence
	epoch := c.epoch
	events := c.beginResponseLocked()
	c.mu.Unlock()
	c.publish(events...)

	result := c.conv.Quiz(ctx, topic, difficulty)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionReset
	}
	c.messages = append(c.messages, result.Message)
	events = append([]models.WSMessage{{Type: models.EventMessageAdded, Payload: result.Message}}, c.endResponseLocked(models.MoodNeutral)...)
	c.mu.Unlock()

	c.publish(events...)
	return result.Message, nil
}

// AnswerQuiz acknowledges the user's pick for a quiz message. Nothing is
// scored beyond the acknowledgement.
func (c *Controller) AnswerQuiz(messageID string, option int) (models.ChatMessage, error) {
	c.mu.Lock()
	c.touchLocked()
	if err := c.interactiveLocked(); err != nil {
		c.mu.Unlock()
		return models.ChatMessage{}, err
	}

	quiz, ok := c.findMessageLocked(messageID)
	if !ok {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrUnknownMessage
	}
	if !quiz.IsQuiz() {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrNotQuiz
	}
	if option < 0 || option >= len(quiz.QuizOptions) {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrInvalidOption
	}

	text, mood := answerIncorrect, models.MoodConfused
	if option == *quiz.CorrectAnswer {
		text, mood = answerCorrect, models.MoodProud
	}
	ack := models.NewTextMessage(models.SenderPartner, text, c.now())
	c.messages = append(c.messages, ack)
	c.mood = mood
	events := []models.WSMessage{{Type: models.EventMessageAdded, Payload: ack}, c.moodEventLocked()}
	c.mu.Unlock()

	c.publish(events...)
	return ack, nil
}

func (c *Controller) findMessageLocked(id string) (models.ChatMessage, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.ChatMessage{}, false
}

// FocusNode moves the current-node pointer.
func (c *Controller) FocusNode(id string) error {
	return c.updateTree(func() bool {
		if c.tree.Find(id) == nil {
			return false
		}
		c.currentNode = id
		return true
	})
}

// CompleteNode marks a topic as covered.
func (c *Controller) CompleteNode(id string) error {
	return c.updateTree(func() bool {
		return c.tree.MarkCompleted(id)
	})
}

func (c *Controller) updateTree(apply func() bool) error {
	c.mu.Lock()
	c.touchLocked()
	if c.phase != models.PhaseStudying && c.phase != models.PhaseFinished {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	if !apply() {
		c.mu.Unlock()
		return ErrUnknownNode
	}
	event := c.treeEventLocked()
	c.mu.Unlock()

	c.publish(event)
	return nil
}

func (c *Controller) phaseEventLocked() models.WSMessage {
	return models.WSMessage{Type: models.EventPhaseChanged, Payload: models.PhaseChanged{
		Phase:            c.phase,
		Paused:           c.paused,
		RemainingSeconds: c.remaining,
	}}
}

func (c *Controller) moodEventLocked() models.WSMessage {
	return models.WSMessage{Type: models.EventMoodChanged, Payload: map[string]models.PartnerMood{"mood": c.mood}}
}

func (c *Controller) respondingEventLocked() models.WSMessage {
	return models.WSMessage{Type: models.EventRespondingChanged, Payload: map[string]bool{"responding": c.inflight > 0}}
}

func (c *Controller) treeEventLocked() models.WSMessage {
	return models.WSMessage{Type: models.EventTreeUpdated, Payload: models.TreeUpdated{
		Tree:          c.tree.Clone(),
		CurrentNodeID: c.currentNode,
	}}
}

func (c *Controller) publish(events ...models.WSMessage) {
	for _, e := range events {
		c.events.Publish(context.Background(), c.id, e)
	}
}

func (c *Controller) startRun(run *models.StudyRun) {
	if c.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.runs.StartRun(ctx, run); err != nil {
		c.logger.Error("failed to record study run", zap.Error(err))
	}
}

func (c *Controller) finishRun(runID uuid.UUID, outcome string, remaining int) {
	if c.runs == nil || runID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.runs.FinishRun(ctx, runID, outcome, remaining, c.now()); err != nil {
		c.logger.Error("failed to finish study run", zap.String("run_id", runID.String()), zap.Error(err))
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uuid.UUID, models.WSMessage) {}
