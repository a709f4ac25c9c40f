package extract

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Service orchestrates the conversion of a single document:
// rasterize, recognize each page in order, write the text.
type Service struct {
	rasterizer domain.Rasterizer
	recognizer domain.Recognizer
	logger     *observability.Logger
}

// NewService creates a new extraction service. The recognizer is owned by the
// caller and must outlive the service.
func NewService(rasterizer domain.Rasterizer, recognizer domain.Recognizer, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		rasterizer: rasterizer,
		recognizer: recognizer,
		logger:     logger.WithOperation("extract"),
	}
}

// Process handles the complete extraction workflow for one work item.
// On any failure the partial text output and the image directory are removed,
// so a failed document never leaves a file behind that looks like success.
func (s *Service) Process(ctx context.Context, item domain.WorkItem, eventCh chan<- domain.StreamEvent) domain.DocumentResult {
	startTime := time.Now()
	logger := s.logger.WithDocument(item.InputPath)

	result := domain.DocumentResult{Item: item}

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Document:  item.InputPath,
		Payload:   fmt.Sprintf("Starting extraction of %s", item.RelPath),
		Timestamp: time.Now(),
	})

	pages, err := s.convert(ctx, item, eventCh, logger)
	result.Pages = pages
	result.Duration = time.Since(startTime)

	if err != nil {
		s.cleanup(item, logger)
		result.Err = err
		s.emitError(eventCh, item, err)
		return result
	}

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventComplete,
		Document:  item.InputPath,
		Payload:   fmt.Sprintf("Extraction complete: %d pages in %v", pages, result.Duration),
		Timestamp: time.Now(),
	})

	logger.Debug().
		Int("pages", pages).
		Dur("duration", result.Duration).
		Str("output", item.OutputPath).
		Msg("Document converted")

	return result
}

func (s *Service) convert(ctx context.Context, item domain.WorkItem, eventCh chan<- domain.StreamEvent, logger *observability.Logger) (int, error) {
	images, err := s.rasterizer.Rasterize(ctx, item.InputPath, item.ImageDir)
	if err != nil {
		return 0, err
	}

	logger.Debug().Int("pages", len(images)).Msg("Rasterized document")

	extraction := domain.ExtractionResult{Pages: make([]string, 0, len(images))}

	for _, image := range images {
		select {
		case <-ctx.Done():
			return len(extraction.Pages), ctx.Err()
		default:
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			Document:   item.InputPath,
			PageNumber: image.PageNumber,
			Payload:    fmt.Sprintf("Processing page %d", image.PageNumber),
			Timestamp:  time.Now(),
		})

		text, err := s.recognizer.Recognize(ctx, image)
		if err != nil {
			return len(extraction.Pages), fmt.Errorf("page %d: %w", image.PageNumber, err)
		}
		extraction.Pages = append(extraction.Pages, text)

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageComplete,
			Document:   item.InputPath,
			PageNumber: image.PageNumber,
			Payload:    fmt.Sprintf("Completed page %d", image.PageNumber),
			Timestamp:  time.Now(),
		})
	}

	if err := WriteText(item.OutputPath, extraction.Text()); err != nil {
		return len(extraction.Pages), err
	}

	return len(extraction.Pages), nil
}

// cleanup removes whatever this document may have left on disk.
func (s *Service) cleanup(item domain.WorkItem, logger *observability.Logger) {
	if err := os.Remove(item.OutputPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("output", item.OutputPath).Msg("Failed to remove partial output")
	}
	if item.ImageDir != "" {
		if err := os.RemoveAll(item.ImageDir); err != nil {
			logger.Warn().Err(err).Str("image_dir", item.ImageDir).Msg("Failed to remove page images")
		}
	}
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, item domain.WorkItem, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Document:  item.InputPath,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}

var _ domain.DocumentProcessor = (*Service)(nil)
