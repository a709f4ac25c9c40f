package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/readability"
)

var (
	readabilityRoot   string
	readabilityReport string
)

var readabilityCmd = &cobra.Command{
	Use:   "readability",
	Short: "Flag OCR output that an LLM judges unreadable",
	Long: `Readability sends a sample of every .txt file under the corpus root to the
configured chat model and writes the paths of files judged unreadable, one per
line, to the report file.`,
	RunE: runReadability,
}

func init() {
	readabilityCmd.Flags().StringVar(&readabilityRoot, "root", "", "text corpus root (overrides config)")
	readabilityCmd.Flags().StringVar(&readabilityReport, "report", "", "report file path (overrides config)")
	rootCmd.AddCommand(readabilityCmd)
}

func runReadability(cmd *cobra.Command, args []string) error {
	root := cfg.RAG.CorpusRoot
	if readabilityRoot != "" {
		root = readabilityRoot
	}
	reportPath := cfg.Readability.ReportPath
	if readabilityReport != "" {
		reportPath = readabilityReport
	}

	chat := newChatClient(cfg)
	checker := readability.NewChecker(chat, cfg.Readability.SampleChars, logger)

	spin := ui.NewSpinner(fmt.Sprintf("Checking %s with %s...", root, chat.Model()))
	spin.Start()
	var checked int
	report, err := checker.CheckCorpus(cmd.Context(), root, func(v readability.Verdict) {
		checked++
		spin.UpdateMessage(fmt.Sprintf("Checked %d file(s)...", checked))
	})
	spin.Stop()
	if err != nil {
		return fmt.Errorf("readability check: %w", err)
	}

	if err := readability.WriteReport(reportPath, report); err != nil {
		return err
	}

	flagged := report.NonReadable()
	if len(flagged) == 0 {
		ui.Success("All %d file(s) readable", len(report.Verdicts))
	} else {
		for _, v := range flagged {
			if v.Err != nil {
				ui.Error("%s: %v", v.Path, v.Err)
			} else {
				ui.Warning("%s", v.Path)
			}
		}
		ui.Warning("%d of %d file(s) flagged", len(flagged), len(report.Verdicts))
	}
	ui.Info("Report written to %s", reportPath)
	return nil
}
