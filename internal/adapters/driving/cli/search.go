package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var (
	searchLimit        int
	searchSurfaces     []string
	searchPerDocCap    int
	searchVectorWeight float64
	searchTextWeight   float64
	searchJSON         bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories and grounded passages",
	Long: `Performs hybrid search across memories and ingested chunks.
Combines keyword (BM25) and semantic (vector) scores, caps results per
document and interleaves topics for diversity. Without an embedding
service the search falls back to keyword scores only.

Each result is a transient citation; pass its id to 'ok cite make' to
keep it.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	d := domain.DefaultSearchOptions()
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", d.K, "maximum number of results")
	searchCmd.Flags().StringSliceVar(&searchSurfaces, "surface", nil, "surfaces to search: memory, grounding (default both)")
	searchCmd.Flags().IntVar(&searchPerDocCap, "per-doc-cap", d.PerDocCap, "maximum results per document")
	searchCmd.Flags().Float64Var(&searchVectorWeight, "vector-weight", d.VectorWeight, "weight of the vector score")
	searchCmd.Flags().Float64Var(&searchTextWeight, "text-weight", d.TextWeight, "weight of the keyword score")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts, err := searchOptions(cmd)
	if err != nil {
		return err
	}

	results, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

// searchOptions starts from the configured defaults and applies any flags
// the user set explicitly.
func searchOptions(cmd *cobra.Command) (domain.SearchOptions, error) {
	opts, err := configuredSearchOptions()
	if err != nil {
		return opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		opts.K = searchLimit
	}
	if flags.Changed("per-doc-cap") {
		opts.PerDocCap = searchPerDocCap
	}
	if flags.Changed("vector-weight") {
		opts.VectorWeight = searchVectorWeight
	}
	if flags.Changed("text-weight") {
		opts.TextWeight = searchTextWeight
	}
	if flags.Changed("surface") {
		opts.Surfaces = make([]domain.Surface, len(searchSurfaces))
		for i, s := range searchSurfaces {
			opts.Surfaces[i] = domain.Surface(s)
		}
	}
	return opts, nil
}

// configuredSearchOptions returns the search options from settings, or the
// built-in defaults when no settings service is wired.
func configuredSearchOptions() (domain.SearchOptions, error) {
	if settingsService == nil {
		return domain.DefaultSearchOptions(), nil
	}
	settings, err := settingsService.Get()
	if err != nil {
		return domain.DefaultSearchOptions(), fmt.Errorf("failed to get settings: %w", err)
	}
	return settings.SearchOptions(), nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.Cite) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println(heading("Results:"))
	cmd.Println()
	for i := range results {
		r := &results[i]
		// Format: [N] score surface id
		cmd.Printf("  [%d] %.2f %s %s\n", i+1, r.Score, dim(string(r.Surface)), r.ID)
		if r.Path != "" {
			cmd.Printf("      %s:%d-%d\n", r.Path, r.Loc.Start, r.Loc.End)
		}
		cmd.Printf("      %q\n", snippet(r.Quote, quoteWidth(6)))
		cmd.Println()
	}

	return nil
}
