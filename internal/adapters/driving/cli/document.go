package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage ingested documents",
	Long: `List ingested documents and repair the mapping between
content-addressed documents and the files they were read from.`,
	Aliases: []string{"doc"},
}

var (
	documentRetired bool
	documentJSON    bool
)

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Long: `Lists documents ordered by path. Documents replaced by a later
ingestion at the same path are retired and shown only with --retired.`,
	Args: cobra.NoArgs,
	RunE: runDocumentList,
}

var documentRelocateCmd = &cobra.Command{
	Use:   "relocate [doc-id] [path]",
	Short: "Point a document at a new path",
	Long: `Records that a document's bytes now live at a different path. The
document id is unchanged because it is derived from content.`,
	Args: cobra.ExactArgs(2),
	RunE: runDocumentRelocate,
}

var documentRelinkCmd = &cobra.Command{
	Use:   "relink [path]",
	Short: "Find the document a moved file belongs to",
	Long: `Hashes the file at path and, if its content matches an ingested
document, updates that document's path.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentRelink,
}

func init() {
	documentListCmd.Flags().BoolVar(&documentRetired, "retired", false, "include retired documents")
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentRelocateCmd)
	documentCmd.AddCommand(documentRelinkCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	docs, err := ingestService.ListDocs(cmd.Context(), documentRetired)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if documentJSON {
		if docs == nil {
			docs = []domain.DocSummary{}
		}
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		d := &docs[i]
		path := d.Path
		if path == "" {
			path = dim("(no path)")
		}
		line := fmt.Sprintf("%s  %s  %s", d.ID, d.IngestedAt.Format("2006-01-02 15:04"), path)
		if d.Retired {
			line += " " + noteMark("retired")
		}
		cmd.Println(line)
	}
	return nil
}

func runDocumentRelocate(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestService.Relocate(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("relocate failed: %w", err)
	}
	cmd.Printf("%s %s -> %s\n", okMark("✓"), args[0], args[1])
	return nil
}

func runDocumentRelink(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	docID, err := ingestService.Relink(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("relink failed: %w", err)
	}
	cmd.Printf("%s %s -> %s\n", okMark("✓"), docID, args[0])
	return nil
}
