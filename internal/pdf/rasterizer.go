package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// NativeDPI is PDF user-space resolution: one pixel per point.
const NativeDPI = 72

// RasterConfig holds page rendering settings.
type RasterConfig struct {
	// DPI used to render pages. Zero renders at NativeDPI.
	DPI float64
	// Pages wider than DownsampleThreshold pixels are shrunk by DownsampleFactor.
	DownsampleThreshold int
	DownsampleFactor    int
	JPEGQuality         int
}

// DefaultRasterConfig mirrors the settings used for oversized office scans.
func DefaultRasterConfig() RasterConfig {
	return RasterConfig{
		DPI:                 NativeDPI,
		DownsampleThreshold: 1500,
		DownsampleFactor:    2,
		JPEGQuality:         85,
	}
}

// Rasterizer renders PDF pages to images using go-fitz
type Rasterizer struct {
	cfg       RasterConfig
	validator *Validator
	logger    *observability.Logger
}

// NewRasterizer creates a new PDF rasterizer instance
func NewRasterizer(cfg RasterConfig, logger *observability.Logger) *Rasterizer {
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Rasterizer{
		cfg:       cfg,
		validator: NewValidator(logger),
		logger:    logger.WithOperation("rasterize"),
	}
}

// Rasterize renders every page of pdfPath in document order.
// If imageDir is set each page is written there as page_<n>.jpg and handed
// off by path; otherwise pages are returned in memory.
// The document handle is released before Rasterize returns.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, imageDir string) ([]domain.PageImage, error) {
	if err := r.validator.ValidateFile(pdfPath); err != nil {
		return nil, err
	}
	if err := r.validator.ValidateQuality(r.cfg.JPEGQuality); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	if imageDir != "" {
		if err := os.MkdirAll(imageDir, 0o755); err != nil {
			return nil, domain.IOError(fmt.Sprintf("Failed to create image directory %s", imageDir), err)
		}
	}

	pages := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := r.render(doc, pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to render page %d", pageNum+1), err)
		}

		img = Downsample(img, r.cfg.DownsampleThreshold, r.cfg.DownsampleFactor)
		bounds := img.Bounds()

		page := domain.PageImage{
			PageNumber: pageNum + 1,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		}

		if imageDir != "" {
			path := filepath.Join(imageDir, PageFileName(pageNum+1))
			if err := writeJPEG(path, img, r.cfg.JPEGQuality); err != nil {
				return nil, domain.IOError(fmt.Sprintf("Failed to write image for page %d", pageNum+1), err)
			}
			page.ImagePath = path
		} else {
			page.Image = img
		}

		pages = append(pages, page)
	}

	r.logger.Debug().Str("document", pdfPath).Int("pages", len(pages)).Msg("Rendered document")
	return pages, nil
}

// render draws one page. fitz's Image defaults to 300 DPI, so the resolution
// is always passed explicitly.
func (r *Rasterizer) render(doc *fitz.Document, pageNum int) (image.Image, error) {
	dpi := r.cfg.DPI
	if dpi <= 0 {
		dpi = NativeDPI
	}
	return doc.ImageDPI(pageNum, dpi)
}

// PageFileName returns the persisted file name for a 1-indexed page.
func PageFileName(pageNumber int) string {
	return fmt.Sprintf("page_%d.jpg", pageNumber)
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
