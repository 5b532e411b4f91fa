// Package cli provides the ok command line interface.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services injected by the composition root.
var (
	ingestService   driving.IngestService
	searchService   driving.SearchService
	citationService driving.CitationService
	distillService  driving.DistillService
	memoryService   driving.MemoryService
	graphService    driving.GraphService
	settingsService driving.SettingsService

	// embeddingCheck pings the configured embedding provider.
	embeddingCheck func(*domain.EmbeddingSettings) error
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ok",
	Short: "Local-first provenance and retrieval engine",
	Long: `ok ingests local files into a content-addressed graph, retrieves
grounded passages and memories with hybrid search, and mints citations
that can be verified against the files they came from.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Services aggregates the driving ports the commands use.
type Services struct {
	Ingest   driving.IngestService
	Search   driving.SearchService
	Citation driving.CitationService
	Distill  driving.DistillService
	Memory   driving.MemoryService
	Graph    driving.GraphService
	Settings driving.SettingsService

	// EmbeddingCheck is used by 'ok config check'. Nil skips the check.
	EmbeddingCheck func(*domain.EmbeddingSettings) error
}

// SetServices injects the services used by the commands.
func SetServices(s Services) {
	ingestService = s.Ingest
	searchService = s.Search
	citationService = s.Citation
	distillService = s.Distill
	memoryService = s.Memory
	graphService = s.Graph
	settingsService = s.Settings
	embeddingCheck = s.EmbeddingCheck
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. Command output goes to stdout and
// diagnostics to stderr.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	return rootCmd.ExecuteContext(ctx)
}
