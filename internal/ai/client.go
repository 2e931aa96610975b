package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/Timeline/internal/embedding"
	"github.com/hray3182/Timeline/internal/models"
	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

func New(apiKey, baseURL, model, embeddingModel string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client:         openai.NewClientWithConfig(config),
		model:          model,
		embeddingModel: embeddingModel,
	}
}

// Embed requests a pooled sentence embedding truncated to the task_log vector
// width. The caller validates the returned dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.embeddingModel),
		Dimensions: embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return resp.Data[0].Embedding, nil
}

// EventDraft is the structured result of parsing a free-text event request
type EventDraft struct {
	Title       string  `json:"title"`
	Start       string  `json:"start"` // YYYY-MM-DD HH:MM
	End         string  `json:"end"`   // YYYY-MM-DD HH:MM, may be empty
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	Recommend   bool    `json:"recommend"`
	Confidence  float64 `json:"confidence"`
	AIMessage   string  `json:"ai_message"`
	RawResponse string  `json:"-"`
}

const systemPromptTemplate = `You are the scheduling assistant of Timeline, a personal calendar.
Turn the user's message into one calendar event.

Current time: %s

Rules:
1. Resolve relative dates ("tomorrow", "next Monday", "in 3 hours") against the current time and
   output them as YYYY-MM-DD HH:MM in the user's local time.
2. Leave "end" empty when the user gives no end time or duration.
3. "category" must be one of: %s. Use an empty string when none fits.
4. "priority" is free text such as "high", "medium" or "low"; empty when not mentioned.
5. Set "recommend" to true only when the user asks you to suggest or recommend a follow-up event
   based on their history instead of scheduling a concrete one.
6. "ai_message" is a short friendly confirmation, or a question when the request is too vague
   (then set confidence below 0.5).`

func getSystemPrompt() string {
	now := time.Now()
	return fmt.Sprintf(systemPromptTemplate,
		now.Format("2006-01-02 15:04 (Monday)"),
		strings.Join(models.Categories, ", "))
}

// JSON Schema for structured output
var eventSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Short event title"},
		"start": {"type": "string", "description": "Start time, YYYY-MM-DD HH:MM"},
		"end": {"type": "string", "description": "End time, YYYY-MM-DD HH:MM, or empty"},
		"description": {"type": "string"},
		"category": {"type": "string"},
		"priority": {"type": "string"},
		"recommend": {"type": "boolean", "description": "Whether the user asked for a recommendation"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"ai_message": {"type": "string"}
	},
	"required": ["title", "start", "end", "description", "category", "priority", "recommend", "confidence", "ai_message"],
	"additionalProperties": false
}`)

func (c *Client) ParseEvent(ctx context.Context, userMessage string) (*EventDraft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: getSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "event",
				Schema: eventSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	return decodeDraft(resp.Choices[0].Message.Content)
}

func decodeDraft(content string) (*EventDraft, error) {
	draft := &EventDraft{RawResponse: content}
	if err := json.Unmarshal([]byte(content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	draft.Category = models.NormalizeCategory(draft.Category)
	return draft, nil
}
