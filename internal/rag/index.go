package rag

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch indicates a vector of the wrong length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a search result.
type Hit struct {
	Chunk Chunk
	Score float32 // cosine similarity
}

// Index is an in-memory cosine similarity index over chunks.
type Index struct {
	mu        sync.RWMutex
	dimension int
	chunks    []Chunk
	vectors   [][]float32
}

// NewIndex creates an empty index. The dimension is fixed by the first
// insert when dimension is 0.
func NewIndex(dimension int) *Index {
	return &Index{dimension: dimension}
}

// Add indexes chunks with their vectors.
func (x *Index) Add(chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks and %d vectors", len(chunks), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, v := range vectors {
		if x.dimension == 0 {
			x.dimension = len(v)
		}
		if len(v) != x.dimension {
			return fmt.Errorf("%w: expected %d, got %d for chunk %s", ErrDimensionMismatch, x.dimension, len(v), chunks[i].ID)
		}
	}

	for i, v := range vectors {
		x.chunks = append(x.chunks, chunks[i])
		x.vectors = append(x.vectors, normalizeVector(v))
	}
	return nil
}

// Search returns the k chunks most similar to query, best first.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, x.dimension, len(query))
	}

	q := normalizeVector(query)
	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Chunk: x.chunks[i], Score: dot(q, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Dimension returns the vector length, or 0 before the first insert.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	// Clamp to [-1, 1] range due to floating point errors
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}

// normalizeVector returns a unit vector.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	normalized := make([]float32, len(v))
	if norm == 0 {
		copy(normalized, v)
		return normalized
	}
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}
	return normalized
}
