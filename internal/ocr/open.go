package ocr

import (
	"context"
	"fmt"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // "tesseract" or "vision"
	Tesseract   TesseractConfig
	Vision      VisionConfig
	Concurrency int
	Retry       RetryConfig
	Logger      *observability.Logger
}

// Open constructs the configured backend, limits it to opts.Concurrency
// concurrent pages, and adds bounded retry on top. The returned engine owns
// the backend; Close it when the run ends.
func Open(ctx context.Context, opts Options) (Engine, error) {
	var (
		backend Engine
		err     error
	)

	switch opts.Backend {
	case "", "tesseract":
		backend, err = NewTesseract(opts.Tesseract)
	case "vision":
		backend, err = NewVision(ctx, opts.Vision)
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown OCR backend %q", opts.Backend), nil)
	}
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}
	logger.Info().
		Str("backend", backend.Name()).
		Int("concurrency", opts.Concurrency).
		Int("max_retries", opts.Retry.MaxRetries).
		Msg("OCR backend ready")

	return WithRetry(WithLimit(backend, opts.Concurrency), opts.Retry, logger.WithOperation("ocr")), nil
}
