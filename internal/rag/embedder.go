package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/spherical/scan-ocr/internal/cache"
	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Embedder turns texts into vectors. Results are returned in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// EmbedderConfig holds embedding client configuration.
type EmbedderConfig struct {
	BaseURL   string // Default: http://localhost:11434/v1
	APIKey    string
	Model     string // e.g., "all-minilm"
	BatchSize int    // Default: 64
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
}

// NewOpenAIEmbedder creates an embedder. Local servers such as Ollama accept
// any API key, so an empty key is allowed.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "all-minilm"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
	}
}

func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed generates embeddings in batches.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, domain.APIError("create embeddings", err)
	}

	// Sort by index
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, v := range embeddings {
		if len(v) == 0 {
			return nil, domain.APIError(fmt.Sprintf("no embedding returned for input %d", i), nil)
		}
	}
	return embeddings, nil
}

// CachedEmbedder serves repeated texts from a cache.
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps inner with c. A ttl of 0 keeps entries indefinitely
// where the backend allows it.
func NewCachedEmbedder(inner Embedder, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Embed looks every text up in the cache and embeds only the misses.
// Cache failures degrade to a direct call.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)

	for i, text := range texts {
		data, err := e.cache.Get(ctx, e.key(text))
		if err == nil {
			var vec []float32
			if jsonErr := json.Unmarshal(data, &vec); jsonErr == nil && len(vec) > 0 {
				out[i] = vec
				continue
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Msg("Embedding cache lookup failed")
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		out[missIdx[j]] = vec
		data, err := json.Marshal(vec)
		if err != nil {
			continue
		}
		if err := e.cache.Set(ctx, e.key(missTexts[j]), data, e.ttl); err != nil {
			e.logger.Warn().Err(err).Msg("Embedding cache store failed")
		}
	}

	e.logger.Debug().
		Int("hits", len(texts)-len(missTexts)).
		Int("misses", len(missTexts)).
		Msg("Embedded texts")
	return out, nil
}

func (e *CachedEmbedder) key(text string) string {
	return cache.HashKey("emb", e.inner.Model(), text)
}

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*CachedEmbedder)(nil)
)
