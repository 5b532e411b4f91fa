package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the service that computes vectors.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingHashing is the built-in offline feature-hashing embedder.
	EmbeddingHashing EmbeddingProvider = "hashing"

	// EmbeddingOllama is a local Ollama instance.
	EmbeddingOllama EmbeddingProvider = "ollama"

	// EmbeddingOpenAI is the OpenAI cloud API.
	EmbeddingOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingHashing, EmbeddingOllama, EmbeddingOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingOpenAI
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingHashing:
		return "Hashing (offline, deterministic)"
	case EmbeddingOllama:
		return "Ollama (local)"
	case EmbeddingOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StoreSettings locates the store and bounds writer contention.
type StoreSettings struct {
	// Dir holds the database file.
	Dir string

	// LockTimeout bounds the wait for the single-writer lock.
	LockTimeout time.Duration
}

// SearchSettings holds retrieval defaults.
type SearchSettings struct {
	K            int
	PerDocCap    int
	VectorWeight float64
	TextWeight   float64
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider EmbeddingProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size. Required for hashing, optional otherwise.
	Dimensions int

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// MemorySettings controls memory note ids.
type MemorySettings struct {
	// DeterministicIDs derives ids from note text instead of time + random.
	DeterministicIDs bool
}

// IngestSettings holds directory ingestion filters.
type IngestSettings struct {
	// Include globs select files. Empty means all supported files.
	Include []string

	// Exclude globs drop files after inclusion.
	Exclude []string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Store     StoreSettings
	Pipeline  PipelineConfig
	Search    SearchSettings
	Embedding EmbeddingSettings
	Memory    MemorySettings
	Ingest    IngestSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The hashing embedder is used so everything works offline.
func DefaultAppSettings() AppSettings {
	d := DefaultSearchOptions()
	return AppSettings{
		Store: StoreSettings{
			LockTimeout: 5 * time.Second,
		},
		Pipeline: DefaultPipelineConfig(),
		Search: SearchSettings{
			K:            d.K,
			PerDocCap:    d.PerDocCap,
			VectorWeight: d.VectorWeight,
			TextWeight:   d.TextWeight,
		},
		Embedding: EmbeddingSettings{
			Provider:   EmbeddingHashing,
			Model:      DefaultEmbeddingModels()[EmbeddingHashing],
			Dimensions: 256,
		},
		Ingest: IngestSettings{
			Exclude: []string{"**/.git/**", "**/node_modules/**"},
		},
	}
}

// Validate checks settings for values the core cannot work with.
func (s AppSettings) Validate() error {
	if s.Search.K <= 0 {
		return fmt.Errorf("%w: search.k must be positive", ErrInvalidInput)
	}
	if s.Search.PerDocCap <= 0 {
		return fmt.Errorf("%w: search.per_doc_cap must be positive", ErrInvalidInput)
	}
	if s.Search.VectorWeight < 0 || s.Search.TextWeight < 0 || s.Search.VectorWeight+s.Search.TextWeight == 0 {
		return fmt.Errorf("%w: search weights must be non-negative and not both zero", ErrInvalidInput)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: embedding.provider %q", ErrInvalidInput, s.Embedding.Provider)
	}
	if s.Embedding.Provider == EmbeddingHashing && s.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive for hashing", ErrInvalidInput)
	}
	if s.Store.LockTimeout <= 0 {
		return fmt.Errorf("%w: store.lock_timeout must be positive", ErrInvalidInput)
	}
	return nil
}

// SearchOptions returns the configured search defaults.
func (s AppSettings) SearchOptions() SearchOptions {
	opts := DefaultSearchOptions()
	opts.K = s.Search.K
	opts.PerDocCap = s.Search.PerDocCap
	opts.VectorWeight = s.Search.VectorWeight
	opts.TextWeight = s.Search.TextWeight
	return opts
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{
		EmbeddingHashing,
		EmbeddingOllama,
		EmbeddingOpenAI,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingHashing: "fnv-trigram",
		EmbeddingOllama:  "nomic-embed-text",
		EmbeddingOpenAI:  "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig returns the default pipeline configuration:
// 512-rune windows sharing 128 runes, followed by mention extraction.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "mentions"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"window_size": 512,
				"stride":      128,
				"locator":     string(LocatorChar),
			},
		},
	}
}
