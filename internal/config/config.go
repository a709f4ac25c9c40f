// Package config provides configuration loading for scan-ocr.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for scan-ocr.
type Config struct {
	Input         InputConfig         `yaml:"input"`
	Output        OutputConfig        `yaml:"output"`
	Raster        RasterConfig        `yaml:"raster"`
	OCR           OCRConfig           `yaml:"ocr"`
	Batch         BatchConfig         `yaml:"batch"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	RAG           RAGConfig           `yaml:"rag"`
	Readability   ReadabilityConfig   `yaml:"readability"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// InputConfig selects the documents to convert.
type InputConfig struct {
	Root     string   `yaml:"root"`
	Suffixes []string `yaml:"suffixes"` // matched case-insensitively
}

// OutputConfig controls where text and page images are written.
type OutputConfig struct {
	TextRoot      string `yaml:"text_root"`
	ImageRoot     string `yaml:"image_root"`
	PersistImages bool   `yaml:"persist_images"`
}

// RasterConfig holds page rendering settings.
type RasterConfig struct {
	DPI                 float64 `yaml:"dpi"` // 72 is native PDF resolution
	DownsampleThreshold int     `yaml:"downsample_threshold"`
	DownsampleFactor    int     `yaml:"downsample_factor"`
	JPEGQuality         int     `yaml:"jpeg_quality"`
}

// OCRConfig selects and tunes the OCR backend.
type OCRConfig struct {
	Backend     string       `yaml:"backend"` // tesseract or vision
	Languages   []string     `yaml:"languages"`
	Concurrency int          `yaml:"concurrency"`
	Retry       RetryConfig  `yaml:"retry"`
	Vision      VisionConfig `yaml:"vision"`
}

// RetryConfig holds OCR retry settings.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// VisionConfig holds settings for the vision-model OCR backend.
type VisionConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Prompt  string        `yaml:"prompt"`
	Timeout time.Duration `yaml:"timeout"`
}

// BatchConfig holds worker pool settings.
type BatchConfig struct {
	Workers    int           `yaml:"workers"`
	DocTimeout time.Duration `yaml:"doc_timeout"`
}

// DatabaseConfig holds run ledger connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RAGConfig holds retrieval and generation settings.
type RAGConfig struct {
	CorpusRoot   string          `yaml:"corpus_root"`
	ChunkSize    int             `yaml:"chunk_size"`
	ChunkOverlap int             `yaml:"chunk_overlap"`
	TopK         int             `yaml:"top_k"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	LLM          LLMConfig       `yaml:"llm"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig holds generation model settings.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
}

// ReadabilityConfig holds readability check settings.
type ReadabilityConfig struct {
	ReportPath  string `yaml:"report_path"`
	SampleChars int    `yaml:"sample_chars"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		cfg.resolvePaths(filepath.Dir(path))
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

const ollamaURL = "http://localhost:11434/v1"

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Root:     "input",
			Suffixes: []string{".pdf"},
		},
		Output: OutputConfig{
			TextRoot:  "output",
			ImageRoot: "images",
		},
		Raster: RasterConfig{
			DPI:                 72,
			DownsampleThreshold: 1500,
			DownsampleFactor:    2,
			JPEGQuality:         85,
		},
		OCR: OCRConfig{
			Backend:     "tesseract",
			Languages:   []string{"eng"},
			Concurrency: 4,
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     30 * time.Second,
			},
			Vision: VisionConfig{
				BaseURL: ollamaURL,
				Model:   "llava:latest",
				Timeout: 5 * time.Minute,
			},
		},
		Batch: BatchConfig{
			Workers:    4,
			DocTimeout: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "scan-ocr.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns: 10,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		RAG: RAGConfig{
			CorpusRoot:   "output",
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         3,
			Embedding: EmbeddingConfig{
				BaseURL:   ollamaURL,
				Model:     "all-minilm",
				Dimension: 384,
				BatchSize: 64,
			},
			LLM: LLMConfig{
				BaseURL: ollamaURL,
				Model:   "deepseek-r1:latest",
			},
		},
		Readability: ReadabilityConfig{
			ReportPath:  "non_readable_files.txt",
			SampleChars: 4000,
		},
		Server: ServerConfig{
			Addr:           ":8086",
			RequestTimeout: 2 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Input.Suffixes) == 0 {
		return fmt.Errorf("input.suffixes must not be empty")
	}

	if c.Raster.JPEGQuality < 1 || c.Raster.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Raster.JPEGQuality)
	}

	if c.Raster.DPI < 0 {
		return fmt.Errorf("raster.dpi must not be negative")
	}

	if c.Raster.DownsampleThreshold < 0 {
		return fmt.Errorf("downsample_threshold must not be negative")
	}

	if c.OCR.Backend != "tesseract" && c.OCR.Backend != "vision" {
		return fmt.Errorf("invalid ocr backend: %s", c.OCR.Backend)
	}

	if c.OCR.Concurrency < 1 {
		return fmt.Errorf("ocr.concurrency must be at least 1")
	}

	if c.OCR.Retry.MaxRetries < 0 {
		return fmt.Errorf("ocr.retry.max_retries must not be negative")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.RAG.ChunkSize < 1 {
		return fmt.Errorf("rag.chunk_size must be positive")
	}

	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size)")
	}

	if c.RAG.TopK < 1 || c.RAG.TopK > 50 {
		return fmt.Errorf("rag.top_k must be between 1 and 50")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// ImageRoot returns the image output root, or "" when images are not persisted.
func (c *Config) ImageRoot() string {
	if !c.Output.PersistImages {
		return ""
	}
	return c.Output.ImageRoot
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCAN_OCR_INPUT"); v != "" {
		cfg.Input.Root = v
	}

	if v := os.Getenv("SCAN_OCR_OUTPUT"); v != "" {
		cfg.Output.TextRoot = v
		cfg.RAG.CorpusRoot = v
	}

	if v := os.Getenv("OCR_BACKEND"); v != "" {
		cfg.OCR.Backend = v
	}

	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = splitList(v)
	}

	if v := os.Getenv("BATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Workers = n
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OCR.Vision.BaseURL = v
		cfg.RAG.Embedding.BaseURL = v
		cfg.RAG.LLM.BaseURL = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.RAG.LLM.Model = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.RAG.Embedding.Model = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OCR.Vision.APIKey = v
		cfg.RAG.Embedding.APIKey = v
		cfg.RAG.LLM.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// resolvePaths makes relative filesystem paths relative to the config file location.
func (c *Config) resolvePaths(baseDir string) {
	c.Input.Root = ResolveRelativePath(baseDir, c.Input.Root)
	c.Output.TextRoot = ResolveRelativePath(baseDir, c.Output.TextRoot)
	c.Output.ImageRoot = ResolveRelativePath(baseDir, c.Output.ImageRoot)
	c.RAG.CorpusRoot = ResolveRelativePath(baseDir, c.RAG.CorpusRoot)
	c.Readability.ReportPath = ResolveRelativePath(baseDir, c.Readability.ReportPath)
	if c.Database.Driver == "sqlite" {
		c.Database.SQLite.Path = ResolveRelativePath(baseDir, c.Database.SQLite.Path)
	}
}

// ResolveRelativePath resolves targetPath against baseDir unless it is absolute or empty.
func ResolveRelativePath(baseDir, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(baseDir, targetPath)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
