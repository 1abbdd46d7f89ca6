package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onenight-backend/internal/models"
)

func seededClient(t *testing.T, chat *fakeChat) (*ConversationClient, *fakeModel) {
	t.Helper()
	model := &fakeModel{newChat: func() *fakeChat { return chat }}
	client := NewConversationClient(model, nil, nil)
	cfg := models.DefaultStudyConfig()
	require.NoError(t, client.Seed(context.Background(), sampleMaterials(), cfg, "Cell Biology"))
	return client, model
}

func TestConversation_ChatWithoutSession(t *testing.T) {
	client := NewConversationClient(&fakeModel{}, nil, nil)

	reply := client.Chat(context.Background(), "hello")

	assert.Equal(t, "I'm not ready yet.", reply.Text)
	assert.ErrorIs(t, reply.Err, ErrNoConversation)
}

func TestConversation_SeedSendsMaterialsAndPersona(t *testing.T) {
	chat := &fakeChat{}
	model := &fakeModel{newChat: func() *fakeChat { return chat }}
	client := NewConversationClient(model, nil, nil)

	cfg := models.DefaultStudyConfig()
	cfg.PartnerName = "Bob"
	cfg.Intelligence = 150
	cfg.Personality = "Dry wit"

	require.NoError(t, client.Seed(context.Background(), sampleMaterials(), cfg, "Cell Biology"))

	require.Len(t, model.chatSpecs, 1)
	instruction := model.chatSpecs[0].SystemInstruction
	assert.Contains(t, instruction, "You are Bob")
	assert.Contains(t, instruction, "Dry wit")
	assert.Contains(t, instruction, "150")
	assert.Contains(t, instruction, "precise and insightful")
	assert.Contains(t, instruction, "under 100 words")

	turns := chat.turns()
	require.Len(t, turns, 1)
	require.Len(t, turns[0], 3)
	assert.IsType(t, genai.Blob{}, turns[0][1])
	assert.Contains(t, string(turns[0][2].(genai.Text)), "confirm you are ready")
}

func TestConversation_AverageIntelligenceIsRelatable(t *testing.T) {
	cfg := models.DefaultStudyConfig()
	cfg.Intelligence = 140

	assert.Contains(t, personaInstruction(cfg, "x"), "relatable and helpful")
}

func TestConversation_FailedSeedKeepsSession(t *testing.T) {
	chat := (&fakeChat{}).script(fakeReply{err: errors.New("payload too large")}, fakeReply{text: "Still here"})
	model := &fakeModel{newChat: func() *fakeChat { return chat }}
	client := NewConversationClient(model, nil, nil)

	err := client.Seed(context.Background(), sampleMaterials(), models.DefaultStudyConfig(), "Topic")
	require.Error(t, err)

	reply := client.Chat(context.Background(), "are you there?")
	assert.Equal(t, "Still here", reply.Text)
	assert.NoError(t, reply.Err)
}

func TestConversation_ChatReplies(t *testing.T) {
	tests := []struct {
		name     string
		reply    fakeReply
		want     string
		fallback bool
	}{
		{"plain reply", fakeReply{text: "Mitosis has four phases."}, "Mitosis has four phases.", false},
		{"empty reply", fakeReply{text: "  "}, "...", false},
		{"model error", fakeReply{err: errors.New("boom")}, "Sorry, I'm having trouble processing that right now.", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chat := (&fakeChat{}).script(fakeReply{text: "ready"}, tc.reply)
			client, _ := seededClient(t, chat)

			reply := client.Chat(context.Background(), "explain mitosis")

			assert.Equal(t, tc.want, reply.Text)
			assert.Equal(t, tc.fallback, reply.Fallback)
		})
	}
}

func TestConversation_QuizParsesReply(t *testing.T) {
	chat := (&fakeChat{}).script(
		fakeReply{text: "ready"},
		fakeReply{text: `{"question":"Q","options":["A","B","C","D"],"correctIndex":2}`},
	)
	client, _ := seededClient(t, chat)

	result := client.Quiz(context.Background(), "Cell Biology", 120)

	require.NoError(t, result.Err)
	msg := result.Message
	assert.Equal(t, models.MessageQuiz, msg.Type)
	assert.Equal(t, models.SenderPartner, msg.Sender)
	assert.Equal(t, "Q", msg.Text)
	assert.Equal(t, []string{"A", "B", "C", "D"}, msg.QuizOptions)
	require.NotNil(t, msg.CorrectAnswer)
	assert.Equal(t, 2, *msg.CorrectAnswer)

	turns := chat.turns()
	prompt := string(turns[len(turns)-1][0].(genai.Text))
	assert.Contains(t, prompt, `"Cell Biology"`)
	assert.Contains(t, prompt, "moderate")
}

func TestConversation_QuizStripsFence(t *testing.T) {
	chat := (&fakeChat{}).script(
		fakeReply{text: "ready"},
		fakeReply{text: "```json\n{\"question\":\"Q\",\"options\":[\"A\",\"B\",\"C\",\"D\"],\"correctIndex\":0}\n```"},
	)
	client, _ := seededClient(t, chat)

	result := client.Quiz(context.Background(), "Topic", 90)

	assert.False(t, result.Fallback)
	assert.Equal(t, models.MessageQuiz, result.Message.Type)
}

func TestConversation_QuizFallsBackToReflection(t *testing.T) {
	tests := []struct {
		name  string
		reply fakeReply
	}{
		{"not json", fakeReply{text: "What is mitosis? A) ..."}},
		{"three options", fakeReply{text: `{"question":"Q","options":["A","B","C"],"correctIndex":0}`}},
		{"index out of range", fakeReply{text: `{"question":"Q","options":["A","B","C","D"],"correctIndex":4}`}},
		{"missing index", fakeReply{text: `{"question":"Q","options":["A","B","C","D"]}`}},
		{"model error", fakeReply{err: errors.New("timeout")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chat := (&fakeChat{}).script(fakeReply{text: "ready"}, tc.reply)
			client, _ := seededClient(t, chat)

			result := client.Quiz(context.Background(), "Genetics", 120)

			assert.True(t, result.Fallback)
			assert.Equal(t, models.MessageText, result.Message.Type)
			assert.Equal(t, "Let's review Genetics. What do you think is the most important takeaway?", result.Message.Text)
			assert.Nil(t, result.Message.CorrectAnswer)
		})
	}
}

func TestConversation_QuizWithoutSession(t *testing.T) {
	client := NewConversationClient(&fakeModel{}, nil, nil)

	result := client.Quiz(context.Background(), "Genetics", 120)

	assert.Equal(t, "Chat session not initialized.", result.Message.Text)
	assert.Equal(t, models.MessageText, result.Message.Type)
}

func TestDifficultyDescriptor(t *testing.T) {
	tests := []struct {
		difficulty int
		want       string
	}{
		{80, "straightforward and basic"},
		{99, "straightforward and basic"},
		{100, "moderate"},
		{130, "moderate"},
		{131, "highly complex and nuanced"},
		{180, "highly complex and nuanced"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, difficultyDescriptor(tc.difficulty), "difficulty %d", tc.difficulty)
	}
}

func TestConversation_ResetDiscardsSession(t *testing.T) {
	client, _ := seededClient(t, &fakeChat{})

	client.Reset()

	assert.Equal(t, "I'm not ready yet.", client.Chat(context.Background(), "hi").Text)
}

func TestConversation_SeedReplacesSession(t *testing.T) {
	model := &fakeModel{}
	client := NewConversationClient(model, nil, nil)

	require.NoError(t, client.Seed(context.Background(), nil, models.DefaultStudyConfig(), "First"))
	first := model.lastChat()
	require.NoError(t, client.Seed(context.Background(), nil, models.DefaultStudyConfig(), "Second"))
	second := model.lastChat()

	client.Chat(context.Background(), "hi")

	assert.Len(t, first.turns(), 1, "old session only saw its seed")
	assert.Len(t, second.turns(), 2)
}

func TestConversation_TurnsAreSerialized(t *testing.T) {
	chat := &fakeChat{delay: 10 * time.Millisecond}
	client, _ := seededClient(t, chat)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Chat(context.Background(), "question")
		}()
	}
	wg.Wait()

	assert.Zero(t, chat.overlapped, "two turns were sent to one session at once")
	assert.Len(t, chat.turns(), 6)
}
