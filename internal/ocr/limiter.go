package ocr

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Limited caps the number of concurrent Recognize calls on an engine.
// A limit of 1 turns the backend into a mutual-exclusion resource.
type Limited struct {
	engine Engine
	sem    *semaphore.Weighted
	limit  int
}

// WithLimit wraps engine so that at most limit pages are recognized at once.
func WithLimit(engine Engine, limit int) *Limited {
	if limit < 1 {
		limit = 1
	}
	return &Limited{
		engine: engine,
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  limit,
	}
}

func (l *Limited) Name() string { return l.engine.Name() }

func (l *Limited) Close() error { return l.engine.Close() }

// Limit returns the declared concurrency limit.
func (l *Limited) Limit() int { return l.limit }

// Recognize waits for a free slot, or for ctx to end, before calling the engine.
func (l *Limited) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)

	return l.engine.Recognize(ctx, page)
}

var _ Engine = (*Limited)(nil)
