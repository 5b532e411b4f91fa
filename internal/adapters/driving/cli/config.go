package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change settings",
	Long: `Settings are stored in ~/.ok/config.toml. Values not set there use
built-in defaults. The OpenAI API key is read from OPENAI_API_KEY and is
never written to disk.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a single setting",
	Long: `Sets one setting and saves it immediately.

Keys:
  store.dir                 directory holding graph.db
  store.lock_timeout        writer lock wait, e.g. 5s
  chunker.window_size       chunk length in locator units
  chunker.stride            overlap between chunks
  chunker.locator           char or tok
  search.k                  default number of results
  search.per_doc_cap        maximum results per document
  search.vector_weight      weight of the vector score
  search.text_weight        weight of the keyword score
  memory.deterministic_ids  derive memory ids from text (true/false)
  embedding.provider        hashing, ollama or openai
  embedding.model           model name
  embedding.base_url        endpoint for ollama or an OpenAI-compatible API
  embedding.dimensions      vector size for the hashing provider
  embedding.rate_limit      requests per second, 0 for unlimited
  ingest.include            comma separated globs
  ingest.exclude            comma separated globs`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and test the embedding provider",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(heading("[Store]"))
	cmd.Printf("  Dir: %s\n", valueOr(settings.Store.Dir, "~/.ok/data"))
	cmd.Printf("  Lock timeout: %s\n", settings.Store.LockTimeout)
	cmd.Println()

	cmd.Println(heading("[Chunker]"))
	chunker := settings.Pipeline.GetProcessorConfig("chunker")
	for _, key := range []string{"window_size", "stride", "locator"} {
		if v, ok := chunker[key]; ok {
			cmd.Printf("  %s: %v\n", key, v)
		}
	}
	cmd.Printf("  Processors: %s\n", strings.Join(settings.Pipeline.Processors, ", "))
	cmd.Println()

	cmd.Println(heading("[Search]"))
	cmd.Printf("  K: %d\n", settings.Search.K)
	cmd.Printf("  Per-doc cap: %d\n", settings.Search.PerDocCap)
	cmd.Printf("  Weights: vector %.2f, text %.2f\n", settings.Search.VectorWeight, settings.Search.TextWeight)
	cmd.Println()

	cmd.Println(heading("[Embedding]"))
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider == domain.EmbeddingHashing {
		cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	if settings.Embedding.RateLimit > 0 {
		cmd.Printf("  Rate limit: %.1f/s\n", settings.Embedding.RateLimit)
	}
	cmd.Println()

	cmd.Println(heading("[Memory]"))
	cmd.Printf("  Deterministic ids: %t\n", settings.Memory.DeterministicIDs)
	cmd.Println()

	cmd.Println(heading("[Ingest]"))
	cmd.Printf("  Include: %s\n", valueOr(strings.Join(settings.Ingest.Include, ", "), "(all supported files)"))
	cmd.Printf("  Exclude: %s\n", valueOr(strings.Join(settings.Ingest.Exclude, ", "), "(none)"))
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("%s %v\n", noteMark("Warning:"), err)
		cmd.Println("Run 'ok config check' for details.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s %s = %s\n", okMark("✓"), args[0], args[1])
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("%s settings: %v\n", failMark("✗"), err)
		return fmt.Errorf("invalid settings: %w", err)
	}
	cmd.Printf("%s settings\n", okMark("✓"))

	if embeddingCheck == nil {
		return nil
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Print("Validating embedding provider... ")
	if err := embeddingCheck(&settings.Embedding); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")
	cmd.Printf("%s embedding: %s (%s)\n", okMark("✓"), settings.Embedding.Provider.Description(), settings.Embedding.Model)
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
