package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
)

// writeTestPDF writes a minimal PDF with blank pages of the given size in points.
func writeTestPDF(t *testing.T, path string, pages int, width, height int) {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] >>", width, height))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	return img
}

func TestDownsample(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		threshold int
		factor    int
		wantW     int
		wantH     int
		unchanged bool
	}{
		{name: "wider than threshold is halved", w: 1600, h: 2000, threshold: 1500, factor: 2, wantW: 800, wantH: 1000},
		{name: "equal to threshold unchanged", w: 1500, h: 2000, threshold: 1500, factor: 2, wantW: 1500, wantH: 2000, unchanged: true},
		{name: "narrower unchanged", w: 800, h: 600, threshold: 1500, factor: 2, wantW: 800, wantH: 600, unchanged: true},
		{name: "custom factor", w: 300, h: 90, threshold: 100, factor: 3, wantW: 100, wantH: 30},
		{name: "disabled by factor", w: 3000, h: 10, threshold: 100, factor: 1, wantW: 3000, wantH: 10, unchanged: true},
		{name: "disabled by threshold", w: 3000, h: 10, threshold: 0, factor: 2, wantW: 3000, wantH: 10, unchanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := solid(tt.w, tt.h)
			got := Downsample(src, tt.threshold, tt.factor)

			assert.Equal(t, tt.wantW, got.Bounds().Dx())
			assert.Equal(t, tt.wantH, got.Bounds().Dy())
			if tt.unchanged {
				assert.Same(t, src, got.(*image.RGBA))
			}
		})
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator(nil)
	dir := t.TempDir()

	upper := filepath.Join(dir, "SCAN.PDF")
	require.NoError(t, os.WriteFile(upper, []byte("%PDF-1.4"), 0o644))
	assert.NoError(t, v.ValidateFile(upper))

	for _, path := range []string{"", "   ", filepath.Join(dir, "missing.pdf"), dir} {
		err := v.ValidateFile(path)
		require.Error(t, err, path)
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), path)
	}

	assert.NoError(t, v.ValidateQuality(85))
	assert.Error(t, v.ValidateQuality(0))
	assert.Error(t, v.ValidateQuality(101))
}

func TestValidator_PageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	writeTestPDF(t, path, 3, 200, 100)

	n, err := NewValidator(nil).PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestValidator_Inspect(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "two.pdf")
	writeTestPDF(t, good, 2, 100, 100)
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o644))

	tests := []struct {
		name    string
		path    string
		pages   int
		wantErr bool
	}{
		{name: "readable", path: good, pages: 2},
		{name: "corrupt", path: bad, wantErr: true},
		{name: "missing", path: filepath.Join(dir, "gone.pdf"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewValidator(nil).Inspect(tt.path)
			assert.Equal(t, tt.path, doc.FilePath)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, doc.TotalPages)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pages, doc.TotalPages)
		})
	}
}

func TestRasterizer_InMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writeTestPDF(t, path, 2, 200, 100)

	r := NewRasterizer(RasterConfig{DPI: 72, DownsampleThreshold: 1500, DownsampleFactor: 2, JPEGQuality: 85}, nil)
	pages, err := r.Rasterize(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.NotNil(t, p.Image)
		assert.Empty(t, p.ImagePath)
		assert.Equal(t, 200, p.Width)
		assert.Equal(t, 100, p.Height)
	}
}

func TestRasterizer_PersistAndDownsample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.pdf")
	writeTestPDF(t, path, 2, 400, 100)
	imageDir := filepath.Join(dir, "images", "wide")

	r := NewRasterizer(RasterConfig{DPI: 72, DownsampleThreshold: 300, DownsampleFactor: 2, JPEGQuality: 85}, nil)
	pages, err := r.Rasterize(context.Background(), path, imageDir)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	for i, p := range pages {
		assert.True(t, p.Persisted())
		assert.Equal(t, filepath.Join(imageDir, fmt.Sprintf("page_%d.jpg", i+1)), p.ImagePath)
		assert.FileExists(t, p.ImagePath)
		assert.Equal(t, 200, p.Width)
		assert.Equal(t, 50, p.Height)
	}
}

func TestRasterizer_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, err := NewRasterizer(DefaultRasterConfig(), nil).Rasterize(context.Background(), path, "")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConversion))
}

func TestRasterizer_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writeTestPDF(t, path, 2, 100, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRasterizer(RasterConfig{DPI: 72, JPEGQuality: 85}, nil).Rasterize(ctx, path, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRasterizer_DefaultConfigRendersNativeSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letter.pdf")
	writeTestPDF(t, path, 1, 612, 792)

	pages, err := NewRasterizer(DefaultRasterConfig(), nil).Rasterize(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, pages, 1)

	// 612pt is under the 1500px threshold at native resolution, so no downsampling.
	assert.Equal(t, 612, pages[0].Width)
	assert.Equal(t, 792, pages[0].Height)
}

func TestRasterizer_ZeroDPIUsesNative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writeTestPDF(t, path, 1, 300, 200)

	pages, err := NewRasterizer(RasterConfig{JPEGQuality: 85}, nil).Rasterize(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 300, pages[0].Width)
	assert.Equal(t, 200, pages[0].Height)
}

func TestRasterizer_ConfiguredSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.SCN")
	writeTestPDF(t, path, 2, 100, 100)

	pages, err := NewRasterizer(DefaultRasterConfig(), nil).Rasterize(context.Background(), path, "")
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	assert.NoError(t, NewValidator(nil).ValidateFile(path))
}
