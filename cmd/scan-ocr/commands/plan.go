package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/layout"
	"github.com/spherical/scan-ocr/internal/pdf"
)

var (
	planInput  string
	planOutput string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the documents a convert run would process",
	Long: `Plan discovers the documents under the input root and prints each one with
its page count and target text file. Nothing is created and no OCR is run.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planInput, "input", "i", "", "input root (overrides config)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "text output root (overrides config)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planInput != "" {
		cfg.Input.Root = planInput
	}
	if planOutput != "" {
		cfg.Output.TextRoot = planOutput
	}

	walker := layout.NewWalker(layout.NewSuffixFilter(cfg.Input.Suffixes...), logger)
	items, err := walker.Discover(cfg.Input.Root, cfg.Output.TextRoot, cfg.ImageRoot())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		ui.Warning("No documents matching %v under %s", cfg.Input.Suffixes, cfg.Input.Root)
		return nil
	}

	validator := pdf.NewValidator(logger)
	rows := make([][]string, 0, len(items))
	var pages, unreadable int
	for _, item := range items {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		count := "?"
		doc, err := validator.Inspect(item.InputPath)
		if err != nil {
			unreadable++
			logger.Debug().Str("document", doc.FilePath).Err(err).Msg("Page count failed")
		} else {
			pages += doc.TotalPages
			count = strconv.Itoa(doc.TotalPages)
		}
		rows = append(rows, []string{item.RelPath, count, item.OutputPath})
	}

	ui.Table([]string{"DOCUMENT", "PAGES", "OUTPUT"}, rows)
	ui.Newline()
	ui.Info("%d document(s), %d page(s)", len(items), pages)
	if unreadable > 0 {
		ui.Warning("%d document(s) could not be opened and will likely fail", unreadable)
	}
	return nil
}
