package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/llm/prompts"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Suggestion is the model's proposed score for one essay answer.
type Suggestion struct {
	Score     float64 `json:"score"`
	MaxPoints int     `json:"max_points"`
	Feedback  string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. The prompt templates must be loaded with
// prompts.Load before the first suggestion.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if variant == "" {
		variant = prompts.PromptStandard
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// SuggestScore asks the model to score a free-text answer against the item's
// rubric. The returned score is clamped to the item's points.
func (c *Client) SuggestScore(ctx context.Context, item model.ExamItem, answer string) (*Suggestion, error) {
	if !item.Type.FreeText() {
		return nil, fmt.Errorf("item %s is %s: %w", item.ID, item.Type, model.ErrInvalid)
	}
	systemPrompt, err := prompts.BuildSuggestPrompt(c.variant, item, answer)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Suggest a score for this answer."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "item_id", item.ID, "raw", raw)
	return parseSuggestion(raw, item.Points)
}

func parseSuggestion(raw string, maxPoints int) (*Suggestion, error) {
	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	s.MaxPoints = maxPoints
	s.Score = min(max(s.Score, 0), float64(maxPoints))
	return &s, nil
}
