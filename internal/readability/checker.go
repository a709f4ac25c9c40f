// Package readability flags OCR output that a language model judges unreadable.
package readability

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/rag"
)

const promptTemplate = `Evaluate the readability of the following text. Is it clear, coherent, and free of major errors? If not, explain why. Text: {text}`

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Verdict is the outcome for one file.
type Verdict struct {
	Path     string
	Readable bool
	Response string
	Err      error
}

// Report collects verdicts for a corpus.
type Report struct {
	Verdicts []Verdict
}

// NonReadable returns the verdicts that belong in the report file: files
// judged unreadable and files whose check failed.
func (r *Report) NonReadable() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Err != nil || !v.Readable {
			out = append(out, v)
		}
	}
	return out
}

// Checker evaluates text files with a language model.
type Checker struct {
	model       Completer
	sampleChars int
	logger      *observability.Logger
}

// NewChecker creates a checker that sends at most sampleChars characters of
// each file. sampleChars <= 0 sends the whole file.
func NewChecker(model Completer, sampleChars int, logger *observability.Logger) *Checker {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Checker{model: model, sampleChars: sampleChars, logger: logger.WithOperation("readability")}
}

// IsNonReadable applies the verdict rule to a model response.
func IsNonReadable(response string) bool {
	lower := strings.ToLower(response)
	return strings.Contains(lower, "not readable") || strings.Contains(lower, "unclear")
}

// CheckText evaluates a single text.
func (c *Checker) CheckText(ctx context.Context, text string) (bool, string, error) {
	prompt := strings.Replace(promptTemplate, "{text}", c.sample(text), 1)
	response, err := c.model.Complete(ctx, prompt)
	if err != nil {
		return false, "", err
	}
	return !IsNonReadable(response), response, nil
}

// CheckCorpus evaluates every text file under root. onVerdict, if non-nil, is
// called after each file. Per-file failures are recorded, not returned.
func (c *Checker) CheckCorpus(ctx context.Context, root string, onVerdict func(Verdict)) (*Report, error) {
	docs, err := rag.LoadCorpus(root, c.logger)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		v := Verdict{Path: doc.Path}
		v.Readable, v.Response, v.Err = c.CheckText(ctx, doc.Text)

		switch {
		case v.Err != nil:
			c.logger.Error().Str("document", doc.Path).Err(v.Err).Msg("Readability check failed")
		case !v.Readable:
			c.logger.Info().Str("document", doc.Path).Msg("Non-readable file")
		default:
			c.logger.Debug().Str("document", doc.Path).Msg("Readable file")
		}

		report.Verdicts = append(report.Verdicts, v)
		if onVerdict != nil {
			onVerdict(v)
		}
	}
	return report, nil
}

func (c *Checker) sample(text string) string {
	if c.sampleChars <= 0 || utf8.RuneCountInString(text) <= c.sampleChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:c.sampleChars])
}

// WriteReport writes one line per non-readable file to path. Failed checks
// are written as "<path> (Error: <err>)".
func WriteReport(path string, report *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("create report %s", path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range report.NonReadable() {
		if v.Err != nil {
			fmt.Fprintf(w, "%s (Error: %v)\n", v.Path, v.Err)
		} else {
			fmt.Fprintf(w, "%s\n", v.Path)
		}
	}
	if err := w.Flush(); err != nil {
		return domain.IOError(fmt.Sprintf("write report %s", path), err)
	}
	return f.Close()
}
