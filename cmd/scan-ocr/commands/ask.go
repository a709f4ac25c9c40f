package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/scan-ocr/cmd/scan-ocr/ui"
	"github.com/spherical/scan-ocr/internal/rag"
)

var (
	askRoot string
	askTopK int
	askJSON bool

	askRefresh    bool
	askClearCache bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the converted text corpus",
	Long: `Ask indexes the text corpus with the configured embedding model, retrieves
the chunks closest to the question and has the chat model answer from them.`,
	Example: `  scan-ocr ask "What is the warranty period?"
  scan-ocr ask --top-k 5 --json "Who signed the lease?"
  scan-ocr ask --refresh "What is the warranty period?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRoot, "root", "", "text corpus root (overrides config)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (overrides config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
	askCmd.Flags().BoolVar(&askRefresh, "refresh", false, "ignore and replace the cached answer to this question")
	askCmd.Flags().BoolVar(&askClearCache, "clear-cache", false, "drop every cached answer before asking")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	if askRoot != "" {
		cfg.RAG.CorpusRoot = askRoot
	}
	if askTopK > 0 {
		cfg.RAG.TopK = askTopK
	}

	store, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := newPipeline(cfg, store)
	if err := buildIndex(ctx, pipeline, cfg.RAG.CorpusRoot); err != nil {
		return err
	}

	switch {
	case askClearCache:
		if err := pipeline.ClearAnswers(ctx); err != nil {
			return fmt.Errorf("clear answer cache: %w", err)
		}
	case askRefresh:
		if err := pipeline.Forget(ctx, question); err != nil {
			return fmt.Errorf("forget cached answer: %w", err)
		}
	}

	spin := ui.NewSpinner("Thinking...")
	if !askJSON {
		spin.Start()
	}
	answer, err := pipeline.Ask(ctx, question)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	printAnswer(answer)
	return nil
}

// buildIndex loads the corpus under root and indexes it, showing progress.
func buildIndex(ctx context.Context, pipeline *rag.Pipeline, root string) error {
	docs, err := rag.LoadCorpus(root, logger)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	progress := ui.NewProgress()
	bar := progress.Bar("Indexing", 0)
	err = pipeline.Build(ctx, docs, func(done, total int) {
		bar.SetTotal(int64(total), false)
		bar.SetCurrent(int64(done))
		if done == total {
			bar.SetTotal(int64(total), true)
		}
	})
	if err != nil {
		bar.Abort(true)
	}
	progress.Wait()
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	logger.Info().
		Int("documents", len(docs)).
		Int("chunks", pipeline.Len()).
		Msg("Corpus indexed")
	return nil
}

func printAnswer(answer *rag.Answer) {
	ui.Section("Answer")
	fmt.Println(strings.TrimSpace(answer.Text))

	if len(answer.Sources) == 0 {
		return
	}
	ui.Section("Sources")
	rows := make([][]string, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		rows = append(rows, []string{
			s.Path,
			fmt.Sprintf("%d", s.Chunk),
			fmt.Sprintf("%.3f", s.Score),
			ui.Truncate(s.Text, 60),
		})
	}
	ui.Table([]string{"FILE", "CHUNK", "SCORE", "EXCERPT"}, rows)
	if answer.Cached {
		ui.Newline()
		ui.Info("Answer served from cache")
	}
}
