package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/scan-ocr/internal/cache"
	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Source is a retrieved chunk reported with an answer.
type Source struct {
	Path  string  `json:"path"`
	Chunk int     `json:"chunk"`
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}

// Answer is the result of a question.
type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Cached   bool     `json:"cached"`
}

// Options tunes a Pipeline.
type Options struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int           // chunks per embedding call during Build
	AnswerCache  cache.Client  // optional
	AnswerTTL    time.Duration // lifetime of cached answers
}

// Pipeline indexes a corpus and answers questions against it.
type Pipeline struct {
	embedder  Embedder
	generator Generator
	chunker   *Chunker
	index     *Index
	corpus    hash.Hash // fingerprint of every indexed chunk
	opts      Options
	logger    *observability.Logger
}

// NewPipeline creates an empty pipeline. Call Build before Ask.
func NewPipeline(embedder Embedder, generator Generator, opts Options, logger *observability.Logger) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = 32
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pipeline{
		embedder:  embedder,
		generator: generator,
		chunker:   NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		index:     NewIndex(0),
		corpus:    sha256.New(),
		opts:      opts,
		logger:    logger.WithOperation("rag"),
	}
}

// Build chunks and embeds docs into the index. progress, if non-nil, is called
// after each embedding batch with the number of chunks indexed so far.
func (p *Pipeline) Build(ctx context.Context, docs []Document, progress func(done, total int)) error {
	chunks := p.chunker.Chunk(docs)
	if len(chunks) == 0 {
		return domain.ValidationError("corpus contains no text", nil)
	}

	for _, c := range chunks {
		p.corpus.Write([]byte(c.Source))
		p.corpus.Write([]byte{0})
		p.corpus.Write([]byte(c.Text))
		p.corpus.Write([]byte{0})
	}

	p.logger.Info().
		Int("documents", len(docs)).
		Int("chunks", len(chunks)).
		Msg("Indexing corpus")

	for i := 0; i < len(chunks); i += p.opts.EmbedBatch {
		end := i + p.opts.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", i, end, err)
		}
		if err := p.index.Add(batch, vectors); err != nil {
			return err
		}
		if progress != nil {
			progress(end, len(chunks))
		}
	}
	return nil
}

// Len returns the number of indexed chunks.
func (p *Pipeline) Len() int { return p.index.Len() }

// Ask retrieves the top-k chunks for question and generates an answer.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ValidationError("question is empty", nil)
	}
	if p.index.Len() == 0 {
		return nil, domain.ValidationError("index is empty", nil)
	}

	key := p.answerKey(question)
	if cached := p.cachedAnswer(ctx, key); cached != nil {
		return cached, nil
	}

	vectors, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, domain.APIError("no embedding returned for question", nil)
	}

	hits, err := p.index.Search(vectors[0], p.opts.TopK)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Question: question, Sources: make([]Source, 0, len(hits))}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Chunk.Text)
		answer.Sources = append(answer.Sources, Source{
			Path:  h.Chunk.Source,
			Chunk: h.Chunk.Index,
			Score: h.Score,
			Text:  h.Chunk.Text,
		})
	}

	text, err := p.generator.Generate(ctx, strings.Join(texts, "\n\n"), question)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer.Text = text

	p.logger.Debug().
		Str("question", question).
		Int("sources", len(answer.Sources)).
		Msg("Answered question")

	p.storeAnswer(ctx, key, answer)
	return answer, nil
}

const answerNamespace = "ans"

// Forget drops the cached answer to question for the current index.
func (p *Pipeline) Forget(ctx context.Context, question string) error {
	if p.opts.AnswerCache == nil {
		return nil
	}
	return p.opts.AnswerCache.Delete(ctx, p.answerKey(strings.TrimSpace(question)))
}

// ClearAnswers drops every cached answer. Cached embeddings are kept.
func (p *Pipeline) ClearAnswers(ctx context.Context) error {
	if p.opts.AnswerCache == nil {
		return nil
	}
	return p.opts.AnswerCache.DeleteByPrefix(ctx, answerNamespace+":")
}

// answerKey identifies an answer by everything that shapes it: the indexed
// corpus, the retrieval depth, both models and the question.
func (p *Pipeline) answerKey(question string) string {
	return cache.HashKey(answerNamespace,
		hex.EncodeToString(p.corpus.Sum(nil)),
		strconv.Itoa(p.opts.TopK),
		p.embedder.Model(),
		p.generator.Model(),
		question,
	)
}

func (p *Pipeline) cachedAnswer(ctx context.Context, key string) *Answer {
	if p.opts.AnswerCache == nil {
		return nil
	}
	data, err := p.opts.AnswerCache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn().Err(err).Msg("Answer cache lookup failed")
		}
		return nil
	}
	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil
	}
	answer.Cached = true
	return &answer
}

func (p *Pipeline) storeAnswer(ctx context.Context, key string, answer *Answer) {
	if p.opts.AnswerCache == nil {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := p.opts.AnswerCache.Set(ctx, key, data, p.opts.AnswerTTL); err != nil {
		p.logger.Warn().Err(err).Msg("Answer cache store failed")
	}
}
