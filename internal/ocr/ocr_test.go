package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/spherical/scan-ocr/internal/domain"
)

// scriptedEngine returns queued errors before succeeding.
type scriptedEngine struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	closed bool
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedEngine) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return fmt.Sprintf("page %d", page.PageNumber), nil
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 1*time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 30*time.Second, calculateBackoff(10, cfg))
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedEngine{errs: []error{errors.New("device busy"), errors.New("device busy")}}
	r := WithRetry(inner, fastRetry(3), nil)

	text, err := r.Recognize(context.Background(), domain.PageImage{PageNumber: 4})
	require.NoError(t, err)
	assert.Equal(t, "page 4", text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	busy := errors.New("device busy")
	inner := &scriptedEngine{errs: []error{busy, busy, busy, busy, busy}}
	r := WithRetry(inner, fastRetry(2), nil)

	_, err := r.Recognize(context.Background(), domain.PageImage{PageNumber: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, busy)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_PermanentNotRetried(t *testing.T) {
	inner := &scriptedEngine{errs: []error{domain.Permanent(errors.New("bad image"))}}
	r := WithRetry(inner, fastRetry(3), nil)

	_, err := r.Recognize(context.Background(), domain.PageImage{PageNumber: 1})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_ContextCancelledDuringBackoff(t *testing.T) {
	inner := &scriptedEngine{errs: []error{errors.New("busy"), errors.New("busy")}}
	r := WithRetry(inner, RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Recognize(ctx, domain.PageImage{PageNumber: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_DelegatesClose(t *testing.T) {
	inner := &scriptedEngine{}
	r := WithRetry(WithLimit(inner, 2), fastRetry(1), nil)
	require.NoError(t, r.Close())
	assert.True(t, inner.closed)
	assert.Equal(t, "scripted", r.Name())
}

// slowEngine records the peak number of concurrent calls.
type slowEngine struct {
	active int32
	peak   int32
}

func (s *slowEngine) Name() string { return "slow" }
func (s *slowEngine) Close() error { return nil }

func (s *slowEngine) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)
	return "ok", nil
}

func TestLimited_CapsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 3} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			inner := &slowEngine{}
			l := WithLimit(inner, limit)
			assert.Equal(t, limit, l.Limit())

			var wg sync.WaitGroup
			for i := 0; i < 12; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := l.Recognize(context.Background(), domain.PageImage{PageNumber: i})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			assert.LessOrEqual(t, int(atomic.LoadInt32(&inner.peak)), limit)
		})
	}
}

func TestLimited_ContextWhileWaiting(t *testing.T) {
	l := WithLimit(&slowEngine{}, 1)
	require.NoError(t, l.sem.Acquire(context.Background(), 1))
	defer l.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Recognize(ctx, domain.PageImage{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEncodePage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	data, mime, err := encodePage(domain.PageImage{PageNumber: 1, Image: img})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.NotEmpty(t, data)

	path := filepath.Join(t.TempDir(), "page_1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o644))
	data, mime, err = encodePage(domain.PageImage{PageNumber: 1, ImagePath: path})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "jpeg bytes", string(data))

	_, _, err = encodePage(domain.PageImage{PageNumber: 2})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func visionServer(t *testing.T, text string, failFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if atomic.AddInt32(&calls, 1) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]string{"content": text}, "finish_reason": "stop"}},
		})
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", payload)
	}))
	return srv, &calls
}

func TestVision_RecognizeWithRetry(t *testing.T) {
	srv, calls := visionServer(t, "  Invoice No. 42\n", 1)
	defer srv.Close()

	engine, err := Open(context.Background(), Options{
		Backend:     "vision",
		Vision:      VisionConfig{BaseURL: srv.URL, Model: "got-ocr2"},
		Concurrency: 1,
		Retry:       fastRetry(2),
	})
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, "vision:got-ocr2", engine.Name())

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	text, err := engine.Recognize(context.Background(), domain.PageImage{PageNumber: 1, Image: img})
	require.NoError(t, err)
	assert.Equal(t, "Invoice No. 42", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestOpen_Failures(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "paddle"})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err = Open(context.Background(), Options{Backend: "vision", Vision: VisionConfig{BaseURL: srv.URL}})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestTesseract_UnknownLanguage(t *testing.T) {
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		t.Skipf("tesseract not installed: %v", err)
	}

	_, err := NewTesseract(TesseractConfig{Languages: []string{"zz-not-a-language"}})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

// textPage draws text in black on white and scales it up so glyphs are
// large enough for Tesseract.
func textPage(text string) image.Image {
	small := image.NewRGBA(image.Rect(0, 0, 7*len(text)+20, 30))
	draw.Draw(small, small.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 20),
	}
	d.DrawString(text)

	b := small.Bounds()
	big := image.NewRGBA(image.Rect(0, 0, b.Dx()*4, b.Dy()*4))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, b, draw.Src, nil)
	return big
}

func TestTesseract_Recognize(t *testing.T) {
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		t.Skipf("tesseract not installed: %v", err)
	}

	engine, err := NewTesseract(TesseractConfig{})
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	defer engine.Close()

	img := textPage("HELLO SCANNER")
	path := filepath.Join(t.TempDir(), "page_1.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())

	b := img.Bounds()
	tests := []struct {
		name string
		page domain.PageImage
	}{
		{name: "in memory", page: domain.PageImage{PageNumber: 1, Width: b.Dx(), Height: b.Dy(), Image: img}},
		{name: "persisted", page: domain.PageImage{PageNumber: 1, Width: b.Dx(), Height: b.Dy(), ImagePath: path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := engine.Recognize(context.Background(), tt.page)
			require.NoError(t, err)
			got := strings.ToUpper(text)
			assert.Contains(t, got, "HELLO")
			assert.Contains(t, got, "SCANNER")
		})
	}
}

func TestTesseract_RecognizeAfterClose(t *testing.T) {
	if _, err := gosseract.GetAvailableLanguages(); err != nil {
		t.Skipf("tesseract not installed: %v", err)
	}
	engine, err := NewTesseract(TesseractConfig{})
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	require.NoError(t, engine.Close())

	_, err = engine.Recognize(context.Background(), domain.PageImage{PageNumber: 1, Image: textPage("X")})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestMissingLanguages(t *testing.T) {
	assert.Empty(t, missingLanguages([]string{"eng"}, []string{"eng", "osd"}))
	assert.Equal(t, []string{"deu"}, missingLanguages([]string{"eng", "deu"}, []string{"eng"}))
}
