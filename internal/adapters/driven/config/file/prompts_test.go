package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ok", "prompts"), store.Dir())
}

func TestPromptStore_Names(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{
		driven.PromptExtractEntities,
		driven.PromptExtractFacts,
		driven.PromptExtractRelationships,
		driven.PromptIdentifyPatterns,
		driven.PromptMemorySynthesis,
		driven.PromptSummarizeInsights,
	}, store.Names())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)

	for _, name := range store.Names() {
		assert.FileExists(t, filepath.Join(dir, name+".txt"))
	}
}

func TestPromptStore_Load_ReturnsDefaultContent(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range store.Names() {
		prompt, err := store.Load(name)
		require.NoError(t, err, name)
		assert.Contains(t, prompt, "%s", name)
	}

	prompt, err := store.Load(driven.PromptMemorySynthesis)
	require.NoError(t, err)
	assert.Contains(t, prompt, "actionable memory entry")
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()
	custom := "Pull out the numbers: %s"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extract-facts.txt"), []byte(custom), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)
	assert.Equal(t, custom, prompt)
}

func TestPromptStore_Load_CustomWithoutPlaceholderFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extract-facts.txt"), []byte("no placeholder"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Extract key facts")
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, _ = store.Load(driven.PromptExtractFacts)
	require.NoError(t, os.Remove(filepath.Join(dir, "extract-facts.txt")))
	store.Reload()

	prompt, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Extract key facts")
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("write-a-poem")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "write-a-poem")
}

func TestPromptStore_Load_CachesUntilReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	first, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extract-facts.txt"), []byte("edited %s"), 0600))

	cached, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)
	assert.Equal(t, "edited %s", fresh)
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range store.Names() {
				_, err := store.Load(name)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory-synthesis.txt")
	require.NoError(t, os.WriteFile(path, []byte("mine %s"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, err = store.Load(driven.PromptExtractFacts)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine %s", string(data))
}
