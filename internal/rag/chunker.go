package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultSeparators are tried in order, from paragraph breaks down to single
// characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is the unit of retrieval.
type Chunk struct {
	ID     uuid.UUID
	Source string // corpus-relative path of the document
	Index  int    // position within the document
	Text   string
}

// Chunker splits text into pieces of at most Size characters, carrying up to
// Overlap characters of the previous piece into the next one. It splits on the
// coarsest separator present and recurses into pieces that are still too long.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker creates a chunker. Invalid settings fall back to 1000/200.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{size: size, overlap: overlap, separators: DefaultSeparators}
}

// Chunk splits every document and assigns chunk IDs.
func (c *Chunker) Chunk(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range c.Split(doc.Text) {
			chunks = append(chunks, Chunk{
				ID:     uuid.New(),
				Source: doc.RelPath,
				Index:  i,
				Text:   text,
			})
		}
	}
	return chunks
}

// Split returns the chunks of a single text.
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			next = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitOn(text, separator) {
		if length(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, c.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good, separator)...)
	}
	return final
}

// merge packs small pieces into chunks, keeping a tail of the previous chunk
// as overlap.
func (c *Chunker) merge(pieces []string, separator string) []string {
	sepLen := length(separator)
	var (
		chunks  []string
		current []string
		total   int
	)

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, piece := range pieces {
		n := length(piece)
		if joinedLen(n) > c.size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > c.overlap || (joinedLen(n) > c.size && total > 0) {
				drop := length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitOn splits text on separator, or into characters when separator is
// empty, and drops empty pieces.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, separator)
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
