package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/batch"
	"github.com/spherical/scan-ocr/internal/config"
	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/extract"
	"github.com/spherical/scan-ocr/internal/layout"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/ocr"
	"github.com/spherical/scan-ocr/internal/pdf"
	"github.com/spherical/scan-ocr/internal/storage"
)

var (
	convertInput    string
	convertOutput   string
	convertImages   string
	convertWorkers  int
	convertBackend  string
	convertTimeout  time.Duration
	convertNoLedger bool
)

// openEngine starts the OCR backend; tests replace it with an in-memory engine.
var openEngine = ocr.Open

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a tree of scanned PDFs into text files",
	Long: `Convert walks the input tree, renders every page of each matching document,
runs OCR over the pages in order and writes one .txt file per document under
the output root, mirroring the input layout.

A document that fails leaves no output file behind. The run continues with
the remaining documents and exits non-zero when any document failed.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "input root (overrides config)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "text output root (overrides config)")
	convertCmd.Flags().StringVar(&convertImages, "images", "", "persist page images under this root")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "w", 0, "documents processed in parallel (overrides config)")
	convertCmd.Flags().StringVar(&convertBackend, "backend", "", "OCR backend: tesseract or vision")
	convertCmd.Flags().DurationVar(&convertTimeout, "timeout", -1, "per-document timeout, 0 disables")
	convertCmd.Flags().BoolVar(&convertNoLedger, "no-ledger", false, "do not record the run in the database")
	rootCmd.AddCommand(convertCmd)
}

// applyConvertFlags overlays command line flags on the loaded config.
func applyConvertFlags(c *config.Config) {
	if convertInput != "" {
		c.Input.Root = convertInput
	}
	if convertOutput != "" {
		c.Output.TextRoot = convertOutput
	}
	if convertImages != "" {
		c.Output.ImageRoot = convertImages
		c.Output.PersistImages = true
	}
	if convertWorkers > 0 {
		c.Batch.Workers = convertWorkers
	}
	if convertBackend != "" {
		c.OCR.Backend = convertBackend
	}
	if convertTimeout >= 0 {
		c.Batch.DocTimeout = convertTimeout
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	applyConvertFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	imageRoot := cfg.ImageRoot()
	if err := layout.EnsureRoot(cfg.Output.TextRoot); err != nil {
		return err
	}
	if imageRoot != "" {
		if err := layout.EnsureRoot(imageRoot); err != nil {
			return err
		}
	}

	walker := layout.NewWalker(layout.NewSuffixFilter(cfg.Input.Suffixes...), logger)
	items, err := walker.Discover(cfg.Input.Root, cfg.Output.TextRoot, imageRoot)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		ui.Warning("No documents matching %v under %s", cfg.Input.Suffixes, cfg.Input.Root)
		return nil
	}
	if err := layout.EnsureLayout(items); err != nil {
		return err
	}

	spin := ui.NewSpinner(fmt.Sprintf("Starting %s OCR backend...", cfg.OCR.Backend))
	spin.Start()
	engine, err := openEngine(ctx, ocrOptions(cfg))
	spin.Stop()
	if err != nil {
		return fmt.Errorf("initialize OCR backend: %w", err)
	}
	defer engine.Close()

	runID := uuid.New()
	ctx = observability.ContextWithRunID(ctx, runID.String())
	runLogger := logger.WithContext(ctx)

	ledger, closeLedger := startLedger(ctx, runID, len(items), engine.Name())
	defer closeLedger()

	service := extract.NewService(pdf.NewRasterizer(rasterConfig(cfg), runLogger), engine, runLogger)
	pool := batch.NewPool(service, cfg.Batch.Workers, cfg.Batch.DocTimeout, runLogger)

	ui.Section("Converting documents")
	ui.KeyValue("Run", runID.String())
	ui.KeyValue("Input", cfg.Input.Root)
	ui.KeyValue("Output", cfg.Output.TextRoot)
	ui.KeyValue("Backend", engine.Name())
	ui.KeyValue("Workers", strconv.Itoa(pool.Workers()))
	ui.Newline()

	bar := ui.NewProgressBar(int64(len(items)), "Converting")
	events := make(chan domain.StreamEvent, 256)
	var watch sync.WaitGroup
	watch.Add(1)
	go func() {
		defer watch.Done()
		watchEvents(events, bar, runLogger)
	}()

	report, runErr := pool.Run(ctx, items, events, func(res domain.DocumentResult) {
		bar.Add(1)
		if ledger == nil {
			return
		}
		if err := ledger.RecordDocument(context.WithoutCancel(ctx), runID, res); err != nil {
			runLogger.Warn().Err(err).Msg("Failed to record document in ledger")
		}
	})
	close(events)
	watch.Wait()
	bar.Finish()

	if ledger != nil {
		if err := ledger.FinishRun(context.WithoutCancel(ctx), runID, report); err != nil {
			runLogger.Warn().Err(err).Msg("Failed to close run in ledger")
		}
	}

	printReport(report)

	if runErr != nil {
		return runErr
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(report.Failed), report.Total)
	}
	return ctx.Err()
}

// watchEvents drains per-page events into the progress bar description until
// the channel is closed.
func watchEvents(events <-chan domain.StreamEvent, bar *ui.ProgressBar, log *observability.Logger) {
	pages := 0
	for ev := range events {
		switch ev.Type {
		case domain.EventPageProcessing, domain.EventPageComplete:
			if ev.Type == domain.EventPageComplete {
				pages++
			}
			bar.Describe(fmt.Sprintf("%s p.%d | %d pages", filepath.Base(ev.Document), ev.PageNumber, pages))
		case domain.EventError:
			log.Debug().Str("document", ev.Document).Str("error", fmt.Sprint(ev.Payload)).Msg("Document failed")
		}
	}
}

// startLedger opens the run ledger and records the run start. A ledger that
// cannot be opened is reported and skipped; the conversion still runs.
func startLedger(ctx context.Context, runID uuid.UUID, total int, backend string) (*storage.RunRepository, func()) {
	noop := func() {}
	if convertNoLedger {
		return nil, noop
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Run ledger unavailable, continuing without it")
		return nil, noop
	}

	repo := storage.NewRunRepository(db)
	err = repo.StartRun(ctx, &storage.Run{
		ID:         runID,
		InputRoot:  cfg.Input.Root,
		OutputRoot: cfg.Output.TextRoot,
		Backend:    backend,
		Workers:    cfg.Batch.Workers,
		Total:      total,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record run start, continuing without ledger")
		db.Close()
		return nil, noop
	}
	return repo, func() { db.Close() }
}

func printReport(report *domain.BatchReport) {
	ui.Section("Summary")
	ui.KeyValue("Documents", strconv.Itoa(report.Total))
	ui.KeyValue("Succeeded", strconv.Itoa(len(report.Succeeded)))
	ui.KeyValue("Failed", strconv.Itoa(len(report.Failed)))
	ui.KeyValue("Pages", strconv.Itoa(report.PagesProcessed()))
	ui.KeyValue("Duration", ui.FormatDuration(report.Duration))

	if len(report.Failed) == 0 {
		ui.Newline()
		ui.Success("All documents converted")
		return
	}

	ui.Newline()
	rows := make([][]string, 0, len(report.Failed))
	for _, res := range report.Failed {
		rows = append(rows, []string{res.Item.RelPath, ui.Truncate(res.Err.Error(), 80)})
	}
	ui.Table([]string{"DOCUMENT", "ERROR"}, rows)
	ui.Newline()
	ui.Error("%d document(s) failed", len(report.Failed))
}
