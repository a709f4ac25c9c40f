package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spherical/scan-ocr/internal/cache"
	"github.com/spherical/scan-ocr/internal/config"
	"github.com/spherical/scan-ocr/internal/llm"
	"github.com/spherical/scan-ocr/internal/ocr"
	"github.com/spherical/scan-ocr/internal/pdf"
	"github.com/spherical/scan-ocr/internal/rag"
	"github.com/spherical/scan-ocr/internal/storage"
)

// ocrOptions maps the ocr config section onto backend options.
func ocrOptions(c *config.Config) ocr.Options {
	return ocr.Options{
		Backend: c.OCR.Backend,
		Tesseract: ocr.TesseractConfig{
			Languages: c.OCR.Languages,
		},
		Vision: ocr.VisionConfig{
			BaseURL: c.OCR.Vision.BaseURL,
			APIKey:  c.OCR.Vision.APIKey,
			Model:   c.OCR.Vision.Model,
			Prompt:  c.OCR.Vision.Prompt,
			Timeout: c.OCR.Vision.Timeout,
		},
		Concurrency: c.OCR.Concurrency,
		Retry: ocr.RetryConfig{
			MaxRetries:     c.OCR.Retry.MaxRetries,
			InitialBackoff: c.OCR.Retry.InitialBackoff,
			MaxBackoff:     c.OCR.Retry.MaxBackoff,
		},
		Logger: logger,
	}
}

func rasterConfig(c *config.Config) pdf.RasterConfig {
	return pdf.RasterConfig{
		DPI:                 c.Raster.DPI,
		DownsampleThreshold: c.Raster.DownsampleThreshold,
		DownsampleFactor:    c.Raster.DownsampleFactor,
		JPEGQuality:         c.Raster.JPEGQuality,
	}
}

func maxOpenConns(c *config.Config) int {
	if c.Database.Driver == storage.DriverSQLite {
		return c.Database.SQLite.MaxOpenConns
	}
	return c.Database.Postgres.MaxOpenConns
}

// openDatabase opens and migrates the run ledger.
func openDatabase(ctx context.Context, c *config.Config) (*sql.DB, error) {
	db, err := storage.Open(ctx, c.Database.Driver, c.DatabaseDSN(), maxOpenConns(c))
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	return db, nil
}

// newCache returns the configured cache client. The caller closes it.
func newCache(ctx context.Context, c *config.Config) (cache.Client, error) {
	if c.Cache.Driver == "redis" {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			PoolSize: c.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return client, nil
	}
	return cache.NewMemoryClient(c.Cache.MaxEntries), nil
}

func newChatClient(c *config.Config) *llm.ChatClient {
	return llm.NewChatClient(llm.ChatConfig{
		BaseURL:     c.RAG.LLM.BaseURL,
		APIKey:      c.RAG.LLM.APIKey,
		Model:       c.RAG.LLM.Model,
		Temperature: c.RAG.LLM.Temperature,
	})
}

// newPipeline wires the embedder, generator and caches for question answering.
func newPipeline(c *config.Config, store cache.Client) *rag.Pipeline {
	var embedder rag.Embedder = rag.NewOpenAIEmbedder(rag.EmbedderConfig{
		BaseURL:   c.RAG.Embedding.BaseURL,
		APIKey:    c.RAG.Embedding.APIKey,
		Model:     c.RAG.Embedding.Model,
		BatchSize: c.RAG.Embedding.BatchSize,
	})
	if store != nil {
		embedder = rag.NewCachedEmbedder(embedder, store, c.Cache.TTL, logger)
	}

	return rag.NewPipeline(embedder, rag.NewChatGenerator(newChatClient(c)), rag.Options{
		TopK:         c.RAG.TopK,
		ChunkSize:    c.RAG.ChunkSize,
		ChunkOverlap: c.RAG.ChunkOverlap,
		EmbedBatch:   c.RAG.Embedding.BatchSize,
		AnswerCache:  store,
		AnswerTTL:    c.Cache.TTL,
	}, logger)
}
