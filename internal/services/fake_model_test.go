package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/generative-ai-go/genai"
)

// fakeModel records what the clients send and replays scripted replies.
type fakeModel struct {
	mu sync.Mutex

	generateReply string
	generateErr   error
	generateSpecs []ModelSpec
	generateParts [][]genai.Part

	chatSpecs []ModelSpec
	chats     []*fakeChat
	newChat   func() *fakeChat
}

func (m *fakeModel) Generate(_ context.Context, spec ModelSpec, parts ...genai.Part) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateSpecs = append(m.generateSpecs, spec)
	m.generateParts = append(m.generateParts, parts)
	return m.generateReply, m.generateErr
}

func (m *fakeModel) StartChat(spec ModelSpec) ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := &fakeChat{}
	if m.newChat != nil {
		chat = m.newChat()
	}
	m.chatSpecs = append(m.chatSpecs, spec)
	m.chats = append(m.chats, chat)
	return chat
}

func (m *fakeModel) lastChat() *fakeChat {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.chats) == 0 {
		return nil
	}
	return m.chats[len(m.chats)-1]
}

type fakeReply struct {
	text string
	err  error
}

type fakeChat struct {
	mu      sync.Mutex
	replies []fakeReply
	sent    [][]genai.Part
	delay   time.Duration

	inFlight   int32
	overlapped int32
}

func (c *fakeChat) script(replies ...fakeReply) *fakeChat {
	c.replies = append(c.replies, replies...)
	return c
}

func (c *fakeChat) Send(_ context.Context, parts ...genai.Part) (string, error) {
	if atomic.AddInt32(&c.inFlight, 1) > 1 {
		atomic.StoreInt32(&c.overlapped, 1)
	}
	defer atomic.AddInt32(&c.inFlight, -1)

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, parts)
	if len(c.replies) == 0 {
		return "ok", nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply.text, reply.err
}

func (c *fakeChat) turns() [][]genai.Part {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]genai.Part(nil), c.sent...)
}
