package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/spherical/scan-ocr/internal/domain"
)

// ChatConfig holds chat completion client configuration.
type ChatConfig struct {
	BaseURL     string // Default: http://localhost:11434/v1
	APIKey      string
	Model       string // e.g., "deepseek-r1:latest"
	Temperature float32
}

// ChatClient sends single-turn prompts to an OpenAI-compatible chat endpoint.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewChatClient creates a chat client.
func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-r1:latest"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &ChatClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Model returns the configured model name
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends prompt as a user message and returns the reply with any
// reasoning block removed.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", domain.APIError("chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.APIError("chat completion failed", errors.New("no response generated"))
	}

	return StripReasoning(resp.Choices[0].Message.Content), nil
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks emitted by reasoning models.
func StripReasoning(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}
