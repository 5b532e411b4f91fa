package services

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/postprocessors"
	"github.com/custodia-labs/openkl/internal/postprocessors/chunker"
	"github.com/custodia-labs/openkl/internal/postprocessors/mentions"
)

// ==================== Mock ConfigStore ====================

type mockConfigStore struct {
	mu      sync.Mutex
	values  map[string]any
	failSet bool
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{values: make(map[string]any)}
}

func (m *mockConfigStore) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *mockConfigStore) GetString(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

func (m *mockConfigStore) GetInt(key string) int {
	v, _ := m.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func (m *mockConfigStore) GetFloat(key string) float64 {
	v, _ := m.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (m *mockConfigStore) GetDuration(key string) time.Duration {
	v, _ := m.Get(key)
	d, _ := v.(time.Duration)
	return d
}

func (m *mockConfigStore) GetBool(key string) bool {
	v, _ := m.Get(key)
	b, _ := v.(bool)
	return b
}

func (m *mockConfigStore) GetStringSlice(key string) []string {
	v, _ := m.Get(key)
	s, _ := v.([]string)
	return s
}

func (m *mockConfigStore) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.values[key] = value
	return nil
}

func (m *mockConfigStore) Save() error  { return nil }
func (m *mockConfigStore) Load() error  { return nil }
func (m *mockConfigStore) Path() string { return "mock" }

// ==================== Mock collaborators ====================

// mockEmbedder hashes words into a small bag-of-words vector.
type mockEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

const mockDims = 32

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return bagOfWords(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return mockDims }
func (m *mockEmbedder) ModelName() string            { return "mock" }
func (m *mockEmbedder) Ping(_ context.Context) error { return m.err }
func (m *mockEmbedder) Close() error                 { return nil }

func (m *mockEmbedder) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, mockDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%mockDims]++
	}
	return vec
}

// plainNormalisers passes file bytes through unchanged.
type plainNormalisers struct{}

func (plainNormalisers) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormalisedDocument, error) {
	return &domain.NormalisedDocument{Path: raw.Path, Text: string(raw.Content)}, nil
}

func (plainNormalisers) Register(driven.Normaliser) {}

func (plainNormalisers) SupportedMIMETypes() []string { return []string{"text/plain"} }

func (plainNormalisers) MIMETypeFor(path string) string {
	if strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".md") {
		return "text/plain"
	}
	return "application/octet-stream"
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockPrompts struct{}

func (mockPrompts) Load(name string) (string, error) {
	if name != driven.PromptExtractFacts {
		return "", domain.ErrNotFound
	}
	return "Extract facts:\n%s", nil
}

func (mockPrompts) Names() []string { return []string{driven.PromptExtractFacts} }

// mockWatcher emits the events pushed into it.
type mockWatcher struct {
	events chan driven.FileEvent
}

func (w *mockWatcher) Watch(ctx context.Context, _ []string) (<-chan driven.FileEvent, error) {
	out := make(chan driven.FileEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (w *mockWatcher) Close() error { return nil }

// ==================== Test environment ====================

type testEnv struct {
	dir      string
	store    *sqlite.Store
	clock    *fakeClock
	embedder *mockEmbedder
	ingest   *IngestService
	cites    *CitationService
	search   *SearchService
	memory   *MemoryService
	distill  *DistillService
	graph    *GraphService
}

// newTestEnv wires every service against a temporary store. Chunks are
// 512-rune windows sharing 128 runes.
func newTestEnv(t *testing.T, chunkOpts ...chunker.Option) *testEnv {
	t.Helper()

	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	env := &testEnv{
		dir:      t.TempDir(),
		store:    store,
		clock:    newFakeClock(),
		embedder: &mockEmbedder{},
	}
	pipeline := postprocessors.NewPipeline(chunker.New(chunkOpts...), mentions.New())
	normalisers := plainNormalisers{}

	env.ingest = NewIngestService(store, normalisers, pipeline, env.embedder, env.clock)
	env.cites = NewCitationService(store, normalisers, env.clock)
	env.search = NewSearchService(store, env.embedder, normalisers)
	env.memory = NewMemoryService(store, env.embedder, env.clock)
	env.distill = NewDistillService(store, env.memory, mockPrompts{})
	env.graph = NewGraphService(store)
	return env
}

// writeFile writes content under the env directory and returns its path.
func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ingestText writes and ingests a file, returning its doc id.
func (e *testEnv) ingestText(t *testing.T, name, content string) string {
	t.Helper()
	res, err := e.ingest.Ingest(context.Background(), e.writeFile(t, name, content), noRechunk)
	require.NoError(t, err)
	return res.DocID
}

// sentence builds distinct filler text of exactly n runes.
func sentence(seed string, n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(seed)
		b.WriteString(" ")
		b.WriteString(strings.Repeat("x", i%7+1))
		b.WriteString(". ")
	}
	return b.String()[:n]
}
