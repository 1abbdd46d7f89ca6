package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"google.golang.org/api/option"
)

// ModelSpec configures one model request or chat session.
type ModelSpec struct {
	SystemInstruction string
	ResponseMIMEType  string
	ResponseSchema    *genai.Schema
	Temperature       *float32
}

// LanguageModel is the part of the Gemini API the study clients depend on.
type LanguageModel interface {
	Generate(ctx context.Context, spec ModelSpec, parts ...genai.Part) (string, error)
	StartChat(spec ModelSpec) ChatSession
}

// ChatSession is a stateful, turn-ordered dialogue held against the model.
type ChatSession interface {
	Send(ctx context.Context, parts ...genai.Part) (string, error)
}

// ErrModelUnavailable is returned by every call when no API key is configured.
var ErrModelUnavailable = errors.New("generative model is not configured")

type GeminiService struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
	rateChan  chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, logger *zap.Logger) (*GeminiService, error) {
	if apiKey == "" {
		return nil, ErrModelUnavailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:    client,
		modelName: modelName,
		logger:    logger,
		rateChan:  rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiService) model(spec ModelSpec) *genai.GenerativeModel {
	model := s.client.GenerativeModel(s.modelName)
	if spec.SystemInstruction != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(spec.SystemInstruction))
	}
	if spec.ResponseMIMEType != "" {
		model.ResponseMIMEType = spec.ResponseMIMEType
	}
	if spec.ResponseSchema != nil {
		model.ResponseSchema = spec.ResponseSchema
	}
	if spec.Temperature != nil {
		model.SetTemperature(*spec.Temperature)
	}
	return model
}

func (s *GeminiService) Generate(ctx context.Context, spec ModelSpec, parts ...genai.Part) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.model(spec).GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	s.logCandidates(resp)

	return extractText(resp), nil
}

func (s *GeminiService) StartChat(spec ModelSpec) ChatSession {
	return &geminiChat{service: s, session: s.model(spec).StartChat()}
}

func (s *GeminiService) logCandidates(resp *genai.GenerateContentResponse) {
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.logger.Warn("gemini stopped early",
				zap.Int("candidate", i),
				zap.String("finish_reason", cand.FinishReason.String()),
				zap.Int32("token_count", cand.TokenCount),
			)
		}
	}
}

type geminiChat struct {
	service *GeminiService
	session *genai.ChatSession
}

func (c *geminiChat) Send(ctx context.Context, parts ...genai.Part) (string, error) {
	if err := c.service.acquireRate(ctx); err != nil {
		return "", err
	}
	defer c.service.releaseRate()

	resp, err := c.session.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Gemini chat error: %w", err)
	}
	c.service.logCandidates(resp)

	return extractText(resp), nil
}

// UnavailableModel stands in for Gemini when no credential is configured.
// Every request fails, which sends callers down their fallback paths.
type UnavailableModel struct{}

func (UnavailableModel) Generate(context.Context, ModelSpec, ...genai.Part) (string, error) {
	return "", ErrModelUnavailable
}

func (UnavailableModel) StartChat(ModelSpec) ChatSession {
	return unavailableChat{}
}

type unavailableChat struct{}

func (unavailableChat) Send(context.Context, ...genai.Part) (string, error) {
	return "", ErrModelUnavailable
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around JSON replies.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
