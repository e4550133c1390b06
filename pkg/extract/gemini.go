package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrisonrobin/jotask/pkg/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

const instructions = `Analyze the following journal entries.
Note:
1. Entries are chronological with the latest at the top.
2. If text is strike-through (formatted as ~~text~~ or explicitly described as completed), mark as status 'done'.
3. If text is highlighted in Red or described as 'Urgent' or 'Critical', mark as isUrgent = true.
4. Infer dependencies between tasks based on context (e.g., "Must finish A before starting B").
5. Extract due dates and categories.

JOURNAL CONTENT:
`

// Config configures the Gemini extraction client.
type Config struct {
	APIKey string
	Model  string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient extracts tasks with a Gemini model constrained to the task schema.
type GeminiClient struct {
	models contentGenerator
	model  string
	logger *logrus.Logger
}

// NewGeminiClient creates a client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg Config, logger *logrus.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Gemini client: %w", err)
	}
	return newGeminiClient(client.Models, cfg.Model, logger), nil
}

func newGeminiClient(models contentGenerator, model string, logger *logrus.Logger) *GeminiClient {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{models: models, model: model, logger: logger}
}

// Extract sends the journal to Gemini. Provider and transport errors are
// returned unwrapped enough for classification.
func (c *GeminiClient) Extract(ctx context.Context, journal string) (model.TaskSet, error) {
	c.logger.WithFields(logrus.Fields{
		"model": c.model,
		"chars": len(journal),
	}).Debug("requesting task extraction")

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(instructions+journal), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(),
	})
	if err != nil {
		return nil, err
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Debug("empty extraction response, treating as no tasks")
	}
	return DecodeResult(text)
}

func extractionSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	nullable := true

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"tasks": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":          str("A unique slugified ID for the task"),
						"title":       str("Short title of the task"),
						"description": str("Detailed description of what needs to be done"),
						"dueDate": {
							Type:        genai.TypeString,
							Description: "ISO date string if a deadline is mentioned, otherwise null",
							Nullable:    &nullable,
						},
						"category": str("A category like 'Work', 'Personal', 'Health', etc."),
						"status":   str("Either 'todo' or 'done'. If the entry is struck through, it's 'done'."),
						"isUrgent": {
							Type:        genai.TypeBoolean,
							Description: "True if the task is highlighted in red or explicitly marked as urgent",
						},
						"dependencies": {
							Type:        genai.TypeArray,
							Items:       &genai.Schema{Type: genai.TypeString},
							Description: "List of IDs of tasks that this task depends on",
						},
						"createdAt": str("The date of the journal entry"),
					},
					Required: []string{"id", "title", "description", "category", "status", "isUrgent", "dependencies", "createdAt"},
				},
			},
		},
		Required: []string{"tasks"},
	}
}
