package models

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser    Sender = "user"
	SenderPartner Sender = "partner"
)

type MessageType string

const (
	MessageText MessageType = "text"
	MessageQuiz MessageType = "quiz"
)

// ChatMessage is one turn in the study conversation. QuizOptions and
// CorrectAnswer are only set for quiz messages.
type ChatMessage struct {
	ID            string      `json:"id"`
	Sender        Sender      `json:"sender"`
	Text          string      `json:"text"`
	Timestamp     int64       `json:"timestamp"`
	Type          MessageType `json:"type"`
	QuizOptions   []string    `json:"quiz_options,omitempty"`
	CorrectAnswer *int        `json:"correct_answer,omitempty"`
}

func NewTextMessage(sender Sender, text string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: at.UnixMilli(),
		Type:      MessageText,
	}
}

func NewQuizMessage(question string, options []string, correct int, at time.Time) ChatMessage {
	return ChatMessage{
		ID:            uuid.NewString(),
		Sender:        SenderPartner,
		Text:          question,
		Timestamp:     at.UnixMilli(),
		Type:          MessageQuiz,
		QuizOptions:   append([]string(nil), options...),
		CorrectAnswer: &correct,
	}
}

func (m ChatMessage) IsQuiz() bool {
	return m.Type == MessageQuiz && m.CorrectAnswer != nil
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

type QuizAnswerRequest struct {
	OptionIndex int `json:"option_index"`
}
