package domain

import (
	"image"
	"sort"
	"strings"
	"time"
)

// Document represents the source PDF file being processed
type Document struct {
	FilePath   string
	TotalPages int
}

// PageImage represents a single rendered PDF page.
// When the page has been persisted, Image is nil and ImagePath names the JPEG on disk.
type PageImage struct {
	PageNumber int
	Width      int
	Height     int
	Image      image.Image
	ImagePath  string
}

// Persisted reports whether the page was handed off as a file.
func (p PageImage) Persisted() bool {
	return p.Image == nil && p.ImagePath != ""
}

// ExtractionResult holds the recognized text of a document in page order.
type ExtractionResult struct {
	Pages []string
}

// Text joins the pages, each followed by a single newline.
func (r *ExtractionResult) Text() string {
	var b strings.Builder
	for _, page := range r.Pages {
		b.WriteString(page)
		b.WriteString("\n")
	}
	return b.String()
}

// WorkItem is one document scheduled for conversion.
type WorkItem struct {
	InputPath  string
	RelPath    string
	OutputPath string
	ImageDir   string // empty when page images are not persisted
}

// DocumentResult is the outcome of processing one WorkItem.
type DocumentResult struct {
	Item     WorkItem
	Pages    int
	Duration time.Duration
	Err      error
}

// OK reports whether the document converted successfully.
func (r DocumentResult) OK() bool {
	return r.Err == nil
}

// BatchReport summarises a batch run.
type BatchReport struct {
	RunID     string
	Total     int
	Succeeded []DocumentResult
	Failed    []DocumentResult
	Duration  time.Duration
}

// Add records a document result.
func (r *BatchReport) Add(res DocumentResult) {
	if res.OK() {
		r.Succeeded = append(r.Succeeded, res)
		return
	}
	r.Failed = append(r.Failed, res)
}

// Sort orders both result lists by input path.
func (r *BatchReport) Sort() {
	byPath := func(s []DocumentResult) {
		sort.Slice(s, func(i, j int) bool { return s[i].Item.InputPath < s[j].Item.InputPath })
	}
	byPath(r.Succeeded)
	byPath(r.Failed)
}

// PagesProcessed returns the number of pages in successful documents.
func (r *BatchReport) PagesProcessed() int {
	n := 0
	for _, res := range r.Succeeded {
		n += res.Pages
	}
	return n
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	Document   string      `json:"document"`
	PageNumber int         `json:"page_number,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
