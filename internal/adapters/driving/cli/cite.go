package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

var citeCmd = &cobra.Command{
	Use:   "cite",
	Short: "Create, verify and manage citations",
	Long: `Citations pin a quote to the exact bytes it came from. Each one
records the target id, content hash, path, span and surrounding context,
and can be re-checked against the file system at any time.`,
}

var (
	citeStart     int
	citeEnd       int
	citeLocator   string
	citeRetention string
	citeTags      []string
	citeURL       string
	citePage      int
	citeJSON      bool
)

var citeMakeCmd = &cobra.Command{
	Use:   "make [target-id]",
	Short: "Create a citation for a doc, chunk or memory",
	Long: `Creates a persistent citation for a document, chunk or memory note.

Use --start and --end to cite a sub-span of the target. Offsets are
relative to the document text for doc targets and to the chunk or note
text otherwise.

Retention classes: ephemeral (1h), standard (7d), durable, pinned.`,
	Args: cobra.ExactArgs(1),
	RunE: runCiteMake,
}

var citeVerifyCmd = &cobra.Command{
	Use:   "verify [cite-id...]",
	Short: "Check citations against their sources",
	Long: `Re-resolves each citation and compares hash and quote with the
current content. Exits with an error if any citation has drifted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCiteVerify,
}

var citeOpenCmd = &cobra.Command{
	Use:   "open [cite-id]",
	Short: "Show a citation's quote in context",
	Args:  cobra.ExactArgs(1),
	RunE:  runCiteOpen,
}

var (
	citeListTypes      []string
	citeListRetentions []string
	citeListStatus     string
	citeListVerify     bool
)

var citeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List citations",
	Args:  cobra.NoArgs,
	RunE:  runCiteList,
}

var (
	gcMaxAge   time.Duration
	gcMaxUsage int
	gcDryRun   bool
)

var citeGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove expired citations",
	Long: `Removes ephemeral and standard citations older than their TTL (or
--max-age) that are referenced by at most --max-usage derivations.
Durable and pinned citations are never removed.`,
	Args: cobra.NoArgs,
	RunE: runCiteGC,
}

func init() {
	citeMakeCmd.Flags().IntVar(&citeStart, "start", -1, "span start offset")
	citeMakeCmd.Flags().IntVar(&citeEnd, "end", -1, "span end offset")
	citeMakeCmd.Flags().StringVar(&citeLocator, "locator", string(domain.LocatorChar), "span unit: char or tok")
	citeMakeCmd.Flags().StringVar(&citeRetention, "retention", string(domain.RetentionStandard), "retention class")
	citeMakeCmd.Flags().StringSliceVarP(&citeTags, "tag", "t", nil, "tag to attach (repeatable)")
	citeMakeCmd.Flags().StringVar(&citeURL, "url", "", "external source URL")
	citeMakeCmd.Flags().IntVar(&citePage, "page", 0, "external source page")
	citeMakeCmd.Flags().BoolVar(&citeJSON, "json", false, "output the citation record as JSON")

	citeVerifyCmd.Flags().BoolVar(&citeJSON, "json", false, "output verification results as JSON")
	citeOpenCmd.Flags().BoolVar(&citeJSON, "json", false, "output as JSON")

	citeListCmd.Flags().StringSliceVarP(&citeTags, "tag", "t", nil, "only citations with this tag")
	citeListCmd.Flags().StringSliceVar(&citeListTypes, "type", nil, "only citations of this type: doc, chunk, memory")
	citeListCmd.Flags().StringSliceVar(&citeListRetentions, "retention", nil, "only citations with this retention class")
	citeListCmd.Flags().StringVar(&citeListStatus, "status", "", "only citations with this status: valid, drifted")
	citeListCmd.Flags().BoolVar(&citeListVerify, "verify", false, "verify each citation and show its status")
	citeListCmd.Flags().BoolVar(&citeJSON, "json", false, "output as JSON")

	citeGCCmd.Flags().DurationVar(&gcMaxAge, "max-age", 0, "override the retention TTL")
	citeGCCmd.Flags().IntVar(&gcMaxUsage, "max-usage", 0, "keep citations used by more derivations than this")
	citeGCCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report without deleting")
	citeGCCmd.Flags().BoolVar(&citeJSON, "json", false, "output the report as JSON")

	citeCmd.AddCommand(citeMakeCmd)
	citeCmd.AddCommand(citeVerifyCmd)
	citeCmd.AddCommand(citeOpenCmd)
	citeCmd.AddCommand(citeListCmd)
	citeCmd.AddCommand(citeGCCmd)
	rootCmd.AddCommand(citeCmd)
}

func runCiteMake(cmd *cobra.Command, args []string) error {
	if citationService == nil {
		return errors.New("citation service not configured")
	}

	req := driving.MakeRequest{
		TargetID:       args[0],
		RetentionClass: domain.RetentionClass(citeRetention),
		Tags:           citeTags,
	}
	if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
		req.Locator = &domain.Span{
			Kind:  domain.LocatorKind(citeLocator),
			Start: citeStart,
			End:   citeEnd,
		}
	}
	if citeURL != "" || citePage != 0 {
		req.Source = &domain.CiteSource{URL: citeURL, Page: citePage}
	}

	cite, err := citationService.Make(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("cite failed: %w", err)
	}

	if citeJSON {
		return printJSON(cmd, cite)
	}
	cmd.Printf("%s %s\n", okMark("✓"), cite.CiteID)
	cmd.Printf("  %s %s\n", dim("target:"), cite.ID)
	cmd.Printf("  %s %s:%d-%d\n", dim("path:"), cite.Path, cite.Loc.Start, cite.Loc.End)
	cmd.Printf("  %s %q\n", dim("quote:"), snippet(cite.Quote, 160))
	return nil
}

func runCiteVerify(cmd *cobra.Command, args []string) error {
	if citationService == nil {
		return errors.New("citation service not configured")
	}

	results := make([]*domain.Verification, 0, len(args))
	drifted := 0
	for _, id := range args {
		v, err := citationService.Verify(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("verify %s: %w", id, err)
		}
		if !v.Valid {
			drifted++
		}
		results = append(results, v)
	}

	if citeJSON {
		if err := printJSON(cmd, results); err != nil {
			return err
		}
	} else {
		for _, v := range results {
			printVerification(cmd, v)
		}
	}

	if drifted > 0 {
		return fmt.Errorf("%d of %d citations drifted", drifted, len(results))
	}
	return nil
}

func printVerification(cmd *cobra.Command, v *domain.Verification) {
	if v.Valid {
		cmd.Printf("%s %s valid\n", okMark("✓"), v.CiteID)
	} else {
		cmd.Printf("%s %s drifted\n", failMark("✗"), v.CiteID)
	}
	for _, d := range v.Diagnostics {
		cmd.Printf("    %s %s: %s\n", noteMark("-"), d.Code, d.Message)
	}
}

func runCiteOpen(cmd *cobra.Command, args []string) error {
	if citationService == nil {
		return errors.New("citation service not configured")
	}

	opened, err := citationService.Open(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}

	if citeJSON {
		return printJSON(cmd, opened)
	}
	cmd.Println(heading(opened.Path))
	cmd.Println()
	cmd.Printf("%s%s%s\n", dim(opened.Context.Pre), opened.Quote, dim(opened.Context.Post))
	return nil
}

func runCiteList(cmd *cobra.Command, _ []string) error {
	if citationService == nil {
		return errors.New("citation service not configured")
	}

	filter := domain.CiteFilter{
		Tags:   citeTags,
		Status: domain.CiteStatus(citeListStatus),
	}
	for _, t := range citeListTypes {
		filter.Types = append(filter.Types, domain.CiteType(t))
	}
	for _, r := range citeListRetentions {
		filter.RetentionClasses = append(filter.RetentionClasses, domain.RetentionClass(r))
	}
	filter.WithStatus = citeListVerify

	summaries, err := citationService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if citeJSON {
		return printJSON(cmd, summaries)
	}
	if len(summaries) == 0 {
		cmd.Println("No citations found.")
		return nil
	}
	for _, s := range summaries {
		mark := " "
		switch s.Status {
		case domain.CiteStatusValid:
			mark = okMark("✓")
		case domain.CiteStatusDrifted:
			mark = failMark("✗")
		}
		cmd.Printf("%s %s  %-6s %-9s %s\n", mark, s.CiteID, s.Type, s.RetentionClass, dim(s.CreatedAt.Format(time.RFC3339)))
		cmd.Printf("    %q\n", snippet(s.Quote, quoteWidth(4)))
	}
	return nil
}

func runCiteGC(cmd *cobra.Command, _ []string) error {
	if citationService == nil {
		return errors.New("citation service not configured")
	}

	report, err := citationService.GC(cmd.Context(), domain.GCPolicy{
		MaxAge:   gcMaxAge,
		MaxUsage: gcMaxUsage,
		DryRun:   gcDryRun,
	})
	if err != nil {
		return fmt.Errorf("gc failed: %w", err)
	}

	if citeJSON {
		return printJSON(cmd, report)
	}
	verb := "Removed"
	if report.DryRun {
		verb = "Would remove"
	}
	cmd.Printf("%s %d citation(s), kept %d.\n", verb, len(report.Removed), report.Kept)
	for _, id := range report.Removed {
		cmd.Printf("  %s\n", id)
	}
	return nil
}
