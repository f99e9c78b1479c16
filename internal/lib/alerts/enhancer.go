package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIEnhancer rewrites notices through a chat completion with a
// strict JSON schema.
type openAIEnhancer struct {
	client *openai.Client
	model  string
}

// NewEnhancer creates an alert enhancer. Without an API key it falls
// back to deterministic template text so the engine keeps working
// offline.
func NewEnhancer(apiKey, model string) Enhancer {
	if apiKey == "" {
		return NewTemplateEnhancer()
	}
	return &openAIEnhancer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Enhance rewrites one raw notice into traveler guidance.
func (e *openAIEnhancer) Enhance(ctx context.Context, raw RawAlert) (TravelerAlert, error) {
	userPrompt := fmt.Sprintf(`Rewrite this hazard report for drivers and return structured JSON:

Title: %s
Report: %s
Location context: %s
Source: %s`,
		raw.Title, raw.Description, raw.Location, raw.Source)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &enhancementSchema,
		},
		// Low temperature keeps the structured output consistent
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return TravelerAlert{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return TravelerAlert{}, errors.New("no response from OpenAI API")
	}

	var structured struct {
		Headline string `json:"headline"`
		Advice   string `json:"advice"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &structured); err != nil {
		return TravelerAlert{}, fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}

	if structured.Headline == "" {
		structured.Headline = truncate(raw.Title, 120)
	}
	if !validSeverity(structured.Severity) {
		structured.Severity = inferSeverity(raw.Title + " " + raw.Description)
	}

	return TravelerAlert{
		ID:          raw.ID,
		Headline:    truncate(structured.Headline, 120),
		Advice:      structured.Advice,
		Severity:    structured.Severity,
		Original:    raw.Description,
		ProcessedAt: time.Now(),
	}, nil
}

// HealthCheck verifies API connectivity with a minimal completion.
func (e *openAIEnhancer) HealthCheck(ctx context.Context) error {
	_, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Test",
			},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("OpenAI API health check failed: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
