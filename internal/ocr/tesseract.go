package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/scan-ocr/internal/domain"
)

// TesseractConfig configures the Tesseract backend.
type TesseractConfig struct {
	Languages []string
	// Variables are passed to Tesseract as-is, e.g. "tessedit_pageseg_mode".
	Variables map[string]string
}

// Tesseract implements Engine on top of gosseract.
//
// Constructing a client loads the language data, which takes noticeable time
// and memory, so clients are pooled and reused across pages. A client is used
// by one page at a time. Close releases every pooled client.
type Tesseract struct {
	cfg           TesseractConfig
	clientFactory func() *gosseract.Client

	mu     sync.Mutex
	idle   []*gosseract.Client
	closed bool
}

// NewTesseract checks that the requested language data is installed and
// returns a ready backend. An error here means OCR cannot run at all.
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}

	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, domain.ConfigError("Failed to list installed Tesseract languages", err)
	}
	if missing := missingLanguages(cfg.Languages, available); len(missing) > 0 {
		return nil, domain.ConfigError(fmt.Sprintf("Tesseract language data not installed: %s", strings.Join(missing, ", ")), nil)
	}

	t := &Tesseract{cfg: cfg, clientFactory: gosseract.NewClient}

	// Warm one client so that configuration errors surface at startup.
	c, err := t.acquire()
	if err != nil {
		return nil, err
	}
	t.release(c)

	return t, nil
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs Tesseract over one page.
func (t *Tesseract) Recognize(ctx context.Context, page domain.PageImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c, err := t.acquire()
	if err != nil {
		return "", recognizeError(page, err)
	}
	defer t.release(c)

	if page.Persisted() {
		err = c.SetImage(page.ImagePath)
	} else {
		var data []byte
		data, _, err = encodePage(page)
		if err == nil {
			err = c.SetImageFromBytes(data)
		}
	}
	if err != nil {
		return "", recognizeError(page, domain.Permanent(fmt.Errorf("set image: %w", err)))
	}

	text, err := c.Text()
	if err != nil {
		return "", recognizeError(page, fmt.Errorf("recognize text: %w", err))
	}
	return strings.TrimSpace(text), nil
}

// Close releases all pooled clients. Pages in flight keep their client until
// they finish; it is closed on release.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []string
	for _, c := range t.idle {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	t.idle = nil
	t.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("close tesseract clients: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (t *Tesseract) acquire() (*gosseract.Client, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.Permanent(domain.ConfigError("tesseract backend is closed", nil))
	}
	if n := len(t.idle); n > 0 {
		c := t.idle[n-1]
		t.idle = t.idle[:n-1]
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	c := t.clientFactory()
	if err := c.SetLanguage(t.cfg.Languages...); err != nil {
		c.Close()
		return nil, domain.ConfigError("set languages", err)
	}
	for k, v := range t.cfg.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			c.Close()
			return nil, domain.ConfigError(fmt.Sprintf("set variable %s", k), err)
		}
	}
	return c, nil
}

func (t *Tesseract) release(c *gosseract.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		c.Close()
		return
	}
	t.idle = append(t.idle, c)
}

func missingLanguages(want, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, l := range available {
		have[l] = true
	}
	var missing []string
	for _, l := range want {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}

var _ Engine = (*Tesseract)(nil)
