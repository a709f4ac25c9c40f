package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/llm"
)

// VisionConfig configures a vision-model OCR backend.
type VisionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Vision recognizes pages by sending them to a vision language model behind an
// OpenAI-compatible endpoint. Such models usually occupy a single accelerator,
// so callers should wrap Vision in Limited with a limit of 1.
type Vision struct {
	client *llm.Client
	prompt string
}

// NewVision connects to the endpoint and fails if it cannot be reached.
func NewVision(ctx context.Context, cfg VisionConfig) (*Vision, error) {
	client := llm.NewClient(llm.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, domain.ConfigError("vision OCR backend unavailable", err)
	}

	return &Vision{client: client, prompt: cfg.Prompt}, nil
}

func (v *Vision) Name() string { return "vision:" + v.client.Model() }

// Recognize streams the transcription of one page and returns it whole.
func (v *Vision) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	data, mime, err := encodePage(page)
	if err != nil {
		return "", recognizeError(page, err)
	}

	resultCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultCh)
		errCh <- v.client.Transcribe(ctx, data, mime, v.prompt, resultCh)
	}()

	var text strings.Builder
	for chunk := range resultCh {
		text.WriteString(chunk)
	}

	if err := <-errCh; err != nil {
		return "", recognizeError(page, err)
	}
	return strings.TrimSpace(text.String()), nil
}

// Close is a no-op; the HTTP client holds no per-run state.
func (v *Vision) Close() error {
	return nil
}

var _ Engine = (*Vision)(nil)
