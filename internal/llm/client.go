package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:11434/v1"
	defaultModel   = "llava:latest"
)

// DefaultPrompt asks a vision model for a verbatim transcription of one page.
const DefaultPrompt = `You are an OCR engine. Transcribe all text visible on this scanned page exactly as written.
Preserve reading order and line breaks. Do not translate, summarise, or add commentary.
If the page contains no text, output nothing.`

// Client talks to an OpenAI-compatible chat completions endpoint serving a vision model
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Config holds client settings
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float32   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new vision model client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Ping checks that the endpoint is reachable by listing models
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return domain.APIError("Failed to build ping request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError(fmt.Sprintf("endpoint %s unreachable", c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.APIError(fmt.Sprintf("endpoint %s returned status %d", c.baseURL, resp.StatusCode), nil)
	}
	return nil
}

// Transcribe sends one page image and streams the transcribed text to resultCh.
// Transient HTTP failures are returned as plain API errors, all others are
// marked permanent.
func (c *Client) Transcribe(ctx context.Context, image []byte, mimeType, prompt string, resultCh chan<- string) error {
	body, err := json.Marshal(c.buildRequest(image, mimeType, prompt))
	if err != nil {
		return domain.Permanent(domain.APIError("Failed to marshal request", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Permanent(domain.APIError("Failed to build request", err))
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
		if shouldRetry(resp.StatusCode) {
			return apiErr
		}
		return domain.Permanent(apiErr)
	}

	return c.parseStream(resp.Body, resultCh)
}

// buildRequest constructs the API request with the image inlined as a data URL
func (c *Client) buildRequest(image []byte, mimeType, prompt string) *Request {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	imageURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
		},
	}

	return &Request{
		Model:    c.model,
		Messages: []Message{msg},
		Stream:   true,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Title", "scan-ocr")
}

// parseStream parses the Server-Sent Events stream
func (c *Client) parseStream(body io.Reader, resultCh chan<- string) error {
	parser := NewStreamParser(body)
	if err := parser.ParseAll(resultCh); err != nil {
		return domain.APIError("Failed to parse stream", err)
	}
	return nil
}

// shouldRetry determines if a status code is worth retrying
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
