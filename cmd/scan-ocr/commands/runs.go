package commands

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/storage"
)

var (
	runsLimit int
	runsRunID string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recorded convert runs",
	Long: `Runs lists the most recent convert runs from the run ledger. With --run it
shows the documents that failed in that run.`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list")
	runsCmd.Flags().StringVar(&runsRunID, "run", "", "show failures for this run ID")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := storage.NewRunRepository(db)

	if runsRunID != "" {
		id, err := uuid.Parse(runsRunID)
		if err != nil {
			return fmt.Errorf("invalid run ID: %w", err)
		}
		return showRun(cmd, repo, id)
	}

	runs, err := repo.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		ui.Info("No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "running"
		if run.Finished() {
			duration = ui.FormatDuration(run.FinishedAt.Time.Sub(run.StartedAt))
		}
		rows = append(rows, []string{
			run.ID.String(),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Backend,
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Pages),
			duration,
		})
	}
	ui.Table([]string{"RUN", "STARTED", "BACKEND", "DOCS", "OK", "FAILED", "PAGES", "DURATION"}, rows)
	return nil
}

func showRun(cmd *cobra.Command, repo *storage.RunRepository, id uuid.UUID) error {
	ctx := cmd.Context()

	run, err := repo.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("get run %s: %w", id, err)
	}

	ui.Section("Run " + run.ID.String())
	ui.KeyValue("Input", run.InputRoot)
	ui.KeyValue("Output", run.OutputRoot)
	ui.KeyValue("Backend", run.Backend)
	ui.KeyValue("Workers", strconv.Itoa(run.Workers))
	ui.KeyValue("Documents", fmt.Sprintf("%d (%d ok, %d failed)", run.Total, run.Succeeded, run.Failed))

	failures, err := repo.ListFailures(ctx, id)
	if err != nil {
		return fmt.Errorf("list failures: %w", err)
	}
	if len(failures) == 0 {
		ui.Newline()
		ui.Success("No failures")
		return nil
	}

	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.InputPath, ui.Truncate(f.Error.String, 80)})
	}
	ui.Newline()
	ui.Table([]string{"DOCUMENT", "ERROR"}, rows)
	return nil
}
