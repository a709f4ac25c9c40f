package ocr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	// initialBackoff * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// Retrying retries failed recognitions with exponential backoff.
// Errors marked permanent and context errors are returned immediately.
type Retrying struct {
	engine Engine
	config RetryConfig
	logger *observability.Logger
}

// WithRetry wraps engine with bounded retry.
func WithRetry(engine Engine, config RetryConfig, logger *observability.Logger) *Retrying {
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = maxBackoff
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Retrying{engine: engine, config: config, logger: logger}
}

func (r *Retrying) Name() string { return r.engine.Name() }

func (r *Retrying) Close() error { return r.engine.Close() }

// Recognize calls the wrapped engine up to MaxRetries+1 times.
func (r *Retrying) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := r.engine.Recognize(ctx, page)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if domain.IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		// Don't wait after last attempt
		if attempt == r.config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, r.config)
		r.logger.Warn().
			Int("page", page.PageNumber).
			Int("attempt", attempt+1).
			Int("max_retries", r.config.MaxRetries).
			Dur("backoff", backoff).
			Err(err).
			Msg("OCR failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", domain.ExtractionError(fmt.Sprintf("OCR failed after %d retries", r.config.MaxRetries), lastErr)
}

var _ Engine = (*Retrying)(nil)
