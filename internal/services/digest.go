package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"onenight-backend/internal/metrics"
	"onenight-backend/internal/models"
)

// digestSchemaDepth is how many levels of the knowledge tree the response
// schema declares: root, subtopic, sub-subtopic.
const digestSchemaDepth = 3

const digestPrompt = `Analyze the attached materials and create a knowledge tree.

The output must follow this schema:
{
  "id": "root",
  "name": "Main Topic Title",
  "children": [
    { "id": "unique_id_1", "name": "Subtopic", "details": "Short summary", "children": [...] }
  ]
}`

var errDigestSchema = errors.New("digest reply does not match the knowledge tree schema")

// DigestResult is the outcome of a digest. Tree is always usable; Fallback
// and Err say whether it is the error tree and why.
type DigestResult struct {
	Tree     *models.KnowledgeNode
	Fallback bool
	Err      error
}

type DigestClient struct {
	model   LanguageModel
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewDigestClient(model LanguageModel, m *metrics.Metrics, logger *zap.Logger) *DigestClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestClient{model: model, metrics: m, logger: logger}
}

// Digest breaks the materials into a hierarchical knowledge tree sized for a
// session of durationMinutes. It never fails; on any error it resolves to
// models.FallbackKnowledgeTree.
func (c *DigestClient) Digest(ctx context.Context, materials []models.StudyMaterial, durationMinutes int) DigestResult {
	start := time.Now()

	tree, err := c.digest(ctx, materials, durationMinutes)
	if err != nil {
		c.logger.Error("error digesting material", zap.Error(err), zap.Int("materials", len(materials)))
		c.metrics.ObserveModelRequest("digest", metrics.OutcomeFallback, time.Since(start))
		return DigestResult{Tree: models.FallbackKnowledgeTree(), Fallback: true, Err: err}
	}

	c.metrics.ObserveModelRequest("digest", metrics.OutcomeOK, time.Since(start))
	return DigestResult{Tree: tree}
}

func (c *DigestClient) digest(ctx context.Context, materials []models.StudyMaterial, durationMinutes int) (*models.KnowledgeNode, error) {
	parts, err := materialParts(materials)
	if err != nil {
		return nil, err
	}
	parts = append(parts, genai.Text(digestPrompt))

	temperature := float32(0.3)
	raw, err := c.model.Generate(ctx, ModelSpec{
		SystemInstruction: digestInstruction(durationMinutes),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    knowledgeSchema(digestSchemaDepth),
		Temperature:       &temperature,
	}, parts...)
	if err != nil {
		return nil, err
	}

	return parseKnowledgeTree(raw)
}

func digestInstruction(durationMinutes int) string {
	var b strings.Builder
	b.WriteString("You are an expert study planner.\n")
	b.WriteString("Your goal is to break down the provided study materials (which may be PDFs, documents, or text) into a hierarchical Mind Map structure.\n")
	b.WriteString(fmt.Sprintf("The total study session is intended to last %d minutes.\n", durationMinutes))
	b.WriteString("Ensure the breakdown is logical and covers all key concepts found in the documents.\n")
	b.WriteString("Return ONLY valid JSON.")
	return b.String()
}

// knowledgeSchema declares a KnowledgeNode object nested depth levels deep.
// The deepest level has no children property.
func knowledgeSchema(depth int) *genai.Schema {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":      {Type: genai.TypeString},
			"name":    {Type: genai.TypeString},
			"details": {Type: genai.TypeString},
		},
		Required: []string{"id", "name"},
	}
	if depth > 1 {
		schema.Properties["children"] = &genai.Schema{
			Type:  genai.TypeArray,
			Items: knowledgeSchema(depth - 1),
		}
	}
	return schema
}

func parseKnowledgeTree(raw string) (*models.KnowledgeNode, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty digest reply: %w", errDigestSchema)
	}

	var tree models.KnowledgeNode
	if err := json.Unmarshal([]byte(cleaned), &tree); err != nil {
		return nil, fmt.Errorf("failed to parse digest reply: %w", err)
	}
	if err := validateKnowledgeNode(&tree); err != nil {
		return nil, err
	}

	tree.Normalize()
	return &tree, nil
}

func validateKnowledgeNode(node *models.KnowledgeNode) error {
	if strings.TrimSpace(node.Name) == "" {
		return fmt.Errorf("node %q has no name: %w", node.ID, errDigestSchema)
	}
	for _, child := range node.Children {
		if child == nil {
			continue
		}
		if err := validateKnowledgeNode(child); err != nil {
			return err
		}
	}
	return nil
}
