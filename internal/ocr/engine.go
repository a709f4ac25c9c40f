// Package ocr provides page-level text recognition backends.
//
// A backend is constructed once per run, owned by the caller, and released
// with Close. Backends that cannot be shared freely are wrapped in Limited to
// declare how many pages may be recognized at the same time, independent of
// how many documents are processed in parallel.
package ocr

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Engine recognizes the text on a single page image.
type Engine interface {
	domain.Recognizer
	Name() string
	Close() error
}

// encodePage returns the encoded page and its MIME type. Persisted pages are
// read from disk; in-memory pages are encoded losslessly as PNG.
func encodePage(page domain.PageImage) ([]byte, string, error) {
	if page.Image == nil {
		if page.ImagePath == "" {
			return nil, "", domain.Permanent(domain.ValidationError(fmt.Sprintf("page %d has no image", page.PageNumber), nil))
		}
		data, err := os.ReadFile(page.ImagePath)
		if err != nil {
			return nil, "", domain.Permanent(domain.IOError(fmt.Sprintf("read page image %s", page.ImagePath), err))
		}
		return data, mimeFromPath(page.ImagePath), nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return nil, "", domain.Permanent(domain.ConversionError(fmt.Sprintf("encode page %d", page.PageNumber), err))
	}
	return buf.Bytes(), "image/png", nil
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}

// recognizeError wraps a backend failure for the given page.
func recognizeError(page domain.PageImage, err error) error {
	wrapped := domain.ExtractionError(fmt.Sprintf("recognize page %d", page.PageNumber), err)
	if domain.IsPermanent(err) {
		return domain.Permanent(wrapped)
	}
	return wrapped
}
