package domain

import "context"

// Rasterizer renders the pages of a document to images
type Rasterizer interface {
	// Rasterize renders every page of pdfPath in order. When imageDir is non-empty,
	// pages are persisted there as page_<n>.jpg.
	Rasterize(ctx context.Context, pdfPath, imageDir string) ([]PageImage, error)
}

// Recognizer turns a single page image into text
type Recognizer interface {
	Recognize(ctx context.Context, page PageImage) (string, error)
}

// DocumentProcessor converts one work item end to end
type DocumentProcessor interface {
	// Process rasterizes, recognizes and writes a single document. Events are
	// sent to eventCh when it is non-nil.
	Process(ctx context.Context, item WorkItem, eventCh chan<- StreamEvent) DocumentResult
}
