package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStoreDir          = "store.dir"
	keyStoreLockTimeout  = "store.lock_timeout"
	keyChunkerWindow     = "chunker.window_size"
	keyChunkerStride     = "chunker.stride"
	keyChunkerLocator    = "chunker.locator"
	keySearchK           = "search.k"
	keySearchPerDocCap   = "search.per_doc_cap"
	keySearchVectorWt    = "search.vector_weight"
	keySearchTextWt      = "search.text_weight"
	keyMemoryDeterminism = "memory.deterministic_ids"
	keyEmbedProvider     = "embedding.provider"
	keyEmbedModel        = "embedding.model"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedDimensions   = "embedding.dimensions"
	keyEmbedRateLimit    = "embedding.rate_limit"
	keyIngestInclude     = "ingest.include"
	keyIngestExclude     = "ingest.exclude"
)

// EnvOpenAIKey supplies the OpenAI API key. It is never written to disk.
const EnvOpenAIKey = "OPENAI_API_KEY"

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Store: domain.StoreSettings{
			Dir:         s.configStore.GetString(keyStoreDir),
			LockTimeout: s.getDuration(keyStoreLockTimeout, defaults.Store.LockTimeout),
		},
		Pipeline: s.getPipeline(defaults.Pipeline),
		Search: domain.SearchSettings{
			K:            s.getInt(keySearchK, defaults.Search.K),
			PerDocCap:    s.getInt(keySearchPerDocCap, defaults.Search.PerDocCap),
			VectorWeight: s.getFloat(keySearchVectorWt, defaults.Search.VectorWeight),
			TextWeight:   s.getFloat(keySearchTextWt, defaults.Search.TextWeight),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(defaults.Embedding.Provider),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL),
			APIKey:     s.getenv(EnvOpenAIKey),
			Dimensions: s.configStore.GetInt(keyEmbedDimensions),
			RateLimit:  s.configStore.GetFloat(keyEmbedRateLimit),
		},
		Memory: domain.MemorySettings{
			DeterministicIDs: s.getBool(keyMemoryDeterminism, defaults.Memory.DeterministicIDs),
		},
		Ingest: domain.IngestSettings{
			Include: s.getStrings(keyIngestInclude, defaults.Ingest.Include),
			Exclude: s.getStrings(keyIngestExclude, defaults.Ingest.Exclude),
		},
	}

	// Model and dimensions follow the provider unless set explicitly.
	settings.Embedding.Model = s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])
	if settings.Embedding.Dimensions == 0 {
		if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
			settings.Embedding.Dimensions = d
		} else if settings.Embedding.Provider == domain.EmbeddingHashing {
			settings.Embedding.Dimensions = defaults.Embedding.Dimensions
		}
	}
	if settings.Embedding.Provider == domain.EmbeddingOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = "http://localhost:11434"
	}

	return settings, nil
}

type setting struct {
	key   string
	value any
}

// Save persists application settings. The API key is not persisted.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	chunker := settings.Pipeline.GetProcessorConfig("chunker")

	values := []setting{
		{keyStoreLockTimeout, settings.Store.LockTimeout},
		{keySearchK, settings.Search.K},
		{keySearchPerDocCap, settings.Search.PerDocCap},
		{keySearchVectorWt, settings.Search.VectorWeight},
		{keySearchTextWt, settings.Search.TextWeight},
		{keyMemoryDeterminism, settings.Memory.DeterministicIDs},
		{keyEmbedProvider, string(settings.Embedding.Provider)},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedDimensions, settings.Embedding.Dimensions},
		{keyEmbedRateLimit, settings.Embedding.RateLimit},
		{keyIngestInclude, nonNil(settings.Ingest.Include)},
		{keyIngestExclude, nonNil(settings.Ingest.Exclude)},
	}
	if settings.Store.Dir != "" {
		values = append(values, setting{keyStoreDir, settings.Store.Dir})
	}
	if settings.Embedding.BaseURL != "" {
		values = append(values, setting{keyEmbedBaseURL, settings.Embedding.BaseURL})
	}
	for _, name := range []string{"window_size", "stride", "locator"} {
		if v, ok := chunker[name]; ok {
			values = append(values, setting{"chunker." + name, v})
		}
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set parses value according to the type of key and stores it.
func (s *SettingsService) Set(key, value string) error {
	var parsed any
	switch key {
	case keyStoreDir, keyEmbedModel, keyEmbedBaseURL:
		parsed = value
	case keyChunkerLocator:
		if !domain.LocatorKind(value).IsValid() {
			return fmt.Errorf("%w: locator %q", domain.ErrInvalidInput, value)
		}
		parsed = value
	case keyEmbedProvider:
		if !domain.EmbeddingProvider(value).IsValid() {
			return fmt.Errorf("%w: embedding provider %q", domain.ErrInvalidInput, value)
		}
		parsed = value
	case keyStoreLockTimeout:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
		parsed = d
	case keyChunkerWindow, keyChunkerStride, keySearchK, keySearchPerDocCap, keyEmbedDimensions:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
		parsed = n
	case keySearchVectorWt, keySearchTextWt, keyEmbedRateLimit:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
		parsed = f
	case keyMemoryDeterminism:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
		parsed = b
	case keyIngestInclude, keyIngestExclude:
		parsed = splitList(value)
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	return s.configStore.Set(key, parsed)
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %s requires %s", domain.ErrInvalidInput,
			settings.Embedding.Provider, EnvOpenAIKey)
	}
	return nil
}

// getPipeline overlays chunker settings on the default pipeline.
func (s *SettingsService) getPipeline(defaults domain.PipelineConfig) domain.PipelineConfig {
	cfg := domain.PipelineConfig{
		Processors:       append([]string(nil), defaults.Processors...),
		ProcessorConfigs: make(map[string]map[string]any, len(defaults.ProcessorConfigs)),
	}
	for name, pc := range defaults.ProcessorConfigs {
		copied := make(map[string]any, len(pc))
		for k, v := range pc {
			copied[k] = v
		}
		cfg.ProcessorConfigs[name] = copied
	}

	chunker := cfg.ProcessorConfigs["chunker"]
	if chunker == nil {
		chunker = make(map[string]any)
		cfg.ProcessorConfigs["chunker"] = chunker
	}
	if v := s.configStore.GetInt(keyChunkerWindow); v > 0 {
		chunker["window_size"] = v
	}
	if _, ok := s.configStore.Get(keyChunkerStride); ok {
		chunker["stride"] = s.configStore.GetInt(keyChunkerStride)
	}
	if v := s.configStore.GetString(keyChunkerLocator); domain.LocatorKind(v).IsValid() {
		chunker["locator"] = v
	}
	return cfg
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getStrings(key string, defaultVal []string) []string {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetStringSlice(key)
}

func (s *SettingsService) getProvider(defaultVal domain.EmbeddingProvider) domain.EmbeddingProvider {
	provider := domain.EmbeddingProvider(s.configStore.GetString(keyEmbedProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return nonNil(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
