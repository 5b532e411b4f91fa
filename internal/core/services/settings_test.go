package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

func newTestSettingsService(env map[string]string) (*SettingsService, *mockConfigStore) {
	store := newMockConfigStore()
	service := NewSettingsService(store)
	service.getenv = func(key string) string { return env[key] }
	return service, store
}

func TestNewSettingsService(t *testing.T) {
	service, _ := newTestSettingsService(nil)
	require.NotNil(t, service)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service, _ := newTestSettingsService(nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Search, settings.Search)
	assert.Equal(t, defaults.Store.LockTimeout, settings.Store.LockTimeout)
	assert.Equal(t, domain.EmbeddingHashing, settings.Embedding.Provider)
	assert.Equal(t, "fnv-trigram", settings.Embedding.Model)
	assert.Equal(t, 256, settings.Embedding.Dimensions)
	assert.Equal(t, defaults.Ingest.Exclude, settings.Ingest.Exclude)
	assert.Equal(t, 512, settings.Pipeline.GetProcessorConfig("chunker")["window_size"])
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	service, store := newTestSettingsService(map[string]string{EnvOpenAIKey: "sk-test"})
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("search.k", 25)
	_ = store.Set("search.vector_weight", 0.8)
	_ = store.Set("store.lock_timeout", 2*time.Second)
	_ = store.Set("chunker.stride", 0)

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 1536, settings.Embedding.Dimensions)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
	assert.Equal(t, 25, settings.Search.K)
	assert.InDelta(t, 0.8, settings.Search.VectorWeight, 1e-9)
	assert.Equal(t, 2*time.Second, settings.Store.LockTimeout)
	assert.Equal(t, 0, settings.Pipeline.GetProcessorConfig("chunker")["stride"])
}

func TestSettingsService_Get_DoesNotMutateDefaults(t *testing.T) {
	service, store := newTestSettingsService(nil)
	_ = store.Set("chunker.window_size", 64)

	_, err := service.Get()
	require.NoError(t, err)

	defaults := domain.DefaultPipelineConfig()
	assert.Equal(t, 512, defaults.GetProcessorConfig("chunker")["window_size"])
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	service, store := newTestSettingsService(nil)
	_ = store.Set("embedding.provider", "invalid_provider")
	_ = store.Set("chunker.locator", "lines")

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingHashing, settings.Embedding.Provider)
	assert.Equal(t, "char", settings.Pipeline.GetProcessorConfig("chunker")["locator"])
}

func TestSettingsService_Get_OllamaBaseURL(t *testing.T) {
	service, store := newTestSettingsService(nil)
	_ = store.Set("embedding.provider", "ollama")

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", settings.Embedding.BaseURL)
	assert.Equal(t, 768, settings.Embedding.Dimensions)
}

func TestSettingsService_Save(t *testing.T) {
	service, store := newTestSettingsService(map[string]string{EnvOpenAIKey: "sk-secret"})
	settings := domain.DefaultAppSettings()
	settings.Search.K = 7
	settings.Embedding.APIKey = "sk-secret"

	require.NoError(t, service.Save(&settings))

	assert.Equal(t, 7, store.GetInt("search.k"))
	assert.Equal(t, "hashing", store.GetString("embedding.provider"))
	assert.Equal(t, 512, store.GetInt("chunker.window_size"))
	for key, v := range store.values {
		assert.NotEqual(t, "sk-secret", v, key)
	}

	loaded, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.K)
}

func TestSettingsService_Save_Error(t *testing.T) {
	service, store := newTestSettingsService(nil)
	store.failSet = true
	settings := domain.DefaultAppSettings()

	err := service.Save(&settings)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.lock_timeout")
}

func TestSettingsService_Set(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"search.k", "12", 12},
		{"search.text_weight", "0.25", 0.25},
		{"store.lock_timeout", "750ms", 750 * time.Millisecond},
		{"memory.deterministic_ids", "true", true},
		{"chunker.locator", "tok", "tok"},
		{"embedding.provider", "ollama", "ollama"},
		{"ingest.exclude", "**/.git/**, *.tmp ,", []string{"**/.git/**", "*.tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			service, store := newTestSettingsService(nil)

			require.NoError(t, service.Set(tt.key, tt.value))

			got, ok := store.Get(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingsService_Set_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"search.k", "many"},
		{"search.vector_weight", "heavy"},
		{"store.lock_timeout", "soon"},
		{"memory.deterministic_ids", "maybe"},
		{"chunker.locator", "lines"},
		{"embedding.provider", "magic"},
		{"no.such.key", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			service, _ := newTestSettingsService(nil)
			assert.ErrorIs(t, service.Set(tt.key, tt.value), domain.ErrInvalidInput)
		})
	}
}

func TestSettingsService_Validate(t *testing.T) {
	service, store := newTestSettingsService(nil)
	require.NoError(t, service.Validate())

	_ = store.Set("embedding.provider", "openai")
	err := service.Validate()
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), EnvOpenAIKey)

	service.getenv = func(string) string { return "sk-test" }
	require.NoError(t, service.Validate())

	_ = store.Set("search.per_doc_cap", -1)
	assert.ErrorIs(t, service.Validate(), domain.ErrInvalidInput)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,b,, "))
	assert.Equal(t, []string{}, splitList(""))
}
