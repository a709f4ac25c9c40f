package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/layout"
)

var (
	renameFrom   string
	renameTo     string
	renameDryRun bool
)

var renameCmd = &cobra.Command{
	Use:   "rename <root>",
	Short: "Rename file extensions across a tree",
	Long: `Rename replaces the extension of every file under root that ends with --from
(matched case-insensitively) by --to. Files whose new name already exists are
left in place and reported.`,
	Example: `  scan-ocr rename ./scans --from .PDF --to .pdf
  scan-ocr rename ./scans --from .tif --to .tiff --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRename,
}

func init() {
	renameCmd.Flags().StringVar(&renameFrom, "from", "", "extension to replace (required)")
	renameCmd.Flags().StringVar(&renameTo, "to", "", "replacement extension (required)")
	renameCmd.Flags().BoolVar(&renameDryRun, "dry-run", false, "print the renames without applying them")
	_ = renameCmd.MarkFlagRequired("from")
	_ = renameCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	renames, err := layout.RenameExtensions(args[0], renameFrom, renameTo, renameDryRun)
	if err != nil {
		return fmt.Errorf("rename extensions: %w", err)
	}
	if len(renames) == 0 {
		ui.Info("No files ending in %s under %s", renameFrom, args[0])
		return nil
	}

	var skipped int
	for _, r := range renames {
		switch {
		case r.Skipped != "":
			skipped++
			ui.Warning("%s: %s", r.From, r.Skipped)
		case renameDryRun:
			ui.Step("%s -> %s", r.From, r.To)
		default:
			logger.Debug().Str("from", r.From).Str("to", r.To).Msg("Renamed")
		}
	}

	done := len(renames) - skipped
	if renameDryRun {
		ui.Info("%d file(s) would be renamed", done)
	} else {
		ui.Success("Renamed %d file(s)", done)
	}
	return nil
}
