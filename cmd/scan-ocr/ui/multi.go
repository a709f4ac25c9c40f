package ui

import (
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress renders several named bars at once.
type Progress struct {
	progress *mpb.Progress
}

// NewProgress creates a multi-bar container writing to stderr.
func NewProgress() *Progress {
	return &Progress{
		progress: mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr)),
	}
}

// Bar adds a counting bar.
func (p *Progress) Bar(name string, total int64) *mpb.Bar {
	return p.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
}

// Wait blocks until all bars complete. When stderr is not a terminal the
// container is shut down instead, since bars never render there.
func (p *Progress) Wait() {
	if IsTerminal() {
		p.progress.Wait()
		return
	}
	p.progress.Shutdown()
}
