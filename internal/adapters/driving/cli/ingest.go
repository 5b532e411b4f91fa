package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

var (
	ingestRechunk bool
	ingestJSON    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest files and directories",
	Long: `Reads, normalises, chunks and indexes local files. Directories are
walked recursively using the ingest.include and ingest.exclude globs.

Re-ingesting unchanged content is a no-op. When a path's content changes
the previous document is retired and its citations report drift.

Use --rechunk after changing chunker.* settings to re-chunk documents.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var watchCmd = &cobra.Command{
	Use:   "watch [root...]",
	Short: "Watch directories and ingest changes",
	Long: `Watches the given directories and ingests files as they are created
or written. Runs until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRechunk, "rechunk", false, "re-chunk documents when chunking parameters changed")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	watchCmd.Flags().BoolVar(&ingestRechunk, "rechunk", false, "re-chunk documents when chunking parameters changed")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
}

// ingestResultView is the JSON form of an ingest result.
type ingestResultView struct {
	domain.IngestResult
	Error string `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := cmd.Context()
	opts := driving.IngestOptions{Rechunk: ingestRechunk}

	var (
		results []domain.IngestResult
		files   []string
	)
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			results = append(results, domain.IngestResult{Path: path, Err: err})
			continue
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		report, err := ingestService.IngestDir(ctx, path, opts)
		if report != nil {
			results = append(results, report.Results...)
		}
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
	}
	if len(files) > 0 {
		report, err := ingestService.IngestBatch(ctx, files, opts)
		if report != nil {
			results = append(results, report.Results...)
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
	}

	if ingestJSON {
		views := make([]ingestResultView, len(results))
		for i, r := range results {
			views[i] = ingestResultView{IngestResult: r}
			if r.Err != nil {
				views[i].Error = r.Err.Error()
			}
		}
		if err := printJSON(cmd, views); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printIngestResult(cmd, r)
		}
	}

	failed := domain.IngestReport{Results: results}.Failed()
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(failed), len(results))
	}
	return nil
}

func printIngestResult(cmd *cobra.Command, r domain.IngestResult) {
	switch {
	case r.Err != nil:
		cmd.Printf("%s %s: %v\n", failMark("✗"), r.Path, r.Err)
	case r.Skipped:
		cmd.Printf("%s %s %s\n", dim("="), r.Path, dim("(unchanged)"))
	default:
		cmd.Printf("%s %s  %s  %d chunks\n", okMark("✓"), r.Path, r.DocID, r.Chunks)
		if r.Retired != "" {
			cmd.Printf("    %s previous version %s retired\n", noteMark("!"), r.Retired)
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %d director%s. Press Ctrl+C to stop.\n", len(args), plural(len(args), "y", "ies"))
	err := ingestService.Watch(ctx, args, driving.IngestOptions{Rechunk: ingestRechunk}, func(r domain.IngestResult) {
		printIngestResult(cmd, r)
	})
	if errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
