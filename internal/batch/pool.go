// Package batch fans documents out across a bounded set of workers.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Pool processes work items with at most workers documents in flight.
// Workers share nothing but the report; one document's failure never cancels
// its siblings.
type Pool struct {
	processor  domain.DocumentProcessor
	workers    int
	docTimeout time.Duration
	logger     *observability.Logger
}

// NewPool creates a pool. workers < 1 means sequential processing and a
// docTimeout of 0 disables the per-document deadline.
func NewPool(processor domain.DocumentProcessor, workers int, docTimeout time.Duration, logger *observability.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pool{
		processor:  processor,
		workers:    workers,
		docTimeout: docTimeout,
		logger:     logger.WithOperation("batch"),
	}
}

// Workers returns the configured pool size.
func (p *Pool) Workers() int { return p.workers }

// Run processes every item and waits for all of them. Progress events from
// the processor are sent to events when it is non-nil; the caller owns and
// closes the channel after Run returns. onDone, if non-nil, is called once per
// item as it finishes; calls are serialized.
//
// The returned error is non-nil only when a worker panicked; it is reported
// after every item has been awaited. Per-document failures are in the report.
func (p *Pool) Run(ctx context.Context, items []domain.WorkItem, events chan<- domain.StreamEvent, onDone func(domain.DocumentResult)) (*domain.BatchReport, error) {
	startTime := time.Now()
	report := &domain.BatchReport{
		RunID: observability.RunIDFromContext(ctx),
		Total: len(items),
	}

	var mu sync.Mutex
	record := func(res domain.DocumentResult) {
		mu.Lock()
		defer mu.Unlock()
		report.Add(res)
		if onDone != nil {
			onDone(res)
		}
	}

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for _, skipped := range items[i:] {
				record(domain.DocumentResult{Item: skipped, Err: err})
			}
			p.logger.Warn().
				Int("skipped", len(items)-i).
				Err(err).
				Msg("Batch cancelled, remaining documents not started")
			break
		}

		item := item
		g.Go(func() error {
			res, err := p.process(ctx, item, events)
			if !res.OK() {
				p.logger.Error().
					Str("document", item.InputPath).
					Err(res.Err).
					Msg("Document failed")
			}
			record(res)
			return err
		})
	}

	err := g.Wait()

	report.Duration = time.Since(startTime)
	report.Sort()

	p.logger.Info().
		Int("total", report.Total).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Int("pages", report.PagesProcessed()).
		Dur("duration", report.Duration).
		Msg("Batch complete")

	return report, err
}

// process runs one item under its own deadline. A panic is converted into a
// failed result and an error for the group.
func (p *Pool) process(ctx context.Context, item domain.WorkItem, events chan<- domain.StreamEvent) (res domain.DocumentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic on %s: %v", item.InputPath, r)
			res = domain.DocumentResult{Item: item, Err: err}
			p.logger.Error().
				Str("document", item.InputPath).
				Str("stack", string(debug.Stack())).
				Msg("Worker panicked")
		}
	}()

	if err := ctx.Err(); err != nil {
		return domain.DocumentResult{Item: item, Err: err}, nil
	}

	docCtx := ctx
	if p.docTimeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, p.docTimeout)
		defer cancel()
	}

	return p.processor.Process(docCtx, item, events), nil
}
