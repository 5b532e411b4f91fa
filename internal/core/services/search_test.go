package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// seedTransformerDocs ingests three multi-chunk docs that all mention the term.
func seedTransformerDocs(t *testing.T, env *testEnv) {
	t.Helper()
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		text := sentence(strings.Repeat("transformer ", i+1)+name, 1400)
		env.ingestText(t, name, text)
	}
}

func TestSearch_PerDocCapAndOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedTransformerDocs(t, env)

	results, err := env.search.Search(ctx, "transformer", domain.SearchOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, results, 3)

	docs := make(map[string]bool)
	for i, r := range results {
		assert.Empty(t, r.CiteID)
		assert.Equal(t, domain.CiteChunk, r.Type)
		assert.Equal(t, domain.SurfaceGrounding, r.Surface)
		assert.NotEmpty(t, r.Path)
		assert.Contains(t, r.Quote, "transformer")
		docID := r.DocID()
		assert.False(t, docs[docID], "doc %s returned twice", docID)
		docs[docID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}

	again, err := env.search.Search(ctx, "transformer", domain.SearchOptions{K: 5})
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

func TestSearch_DedupeBound(t *testing.T) {
	env := newTestEnv(t)
	seedTransformerDocs(t, env)

	for _, limit := range []int{1, 2, 3} {
		results, err := env.search.Search(context.Background(), "transformer", domain.SearchOptions{K: 20, PerDocCap: limit})
		require.NoError(t, err)
		counts := make(map[string]int)
		for _, r := range results {
			counts[r.DocID()]++
		}
		for docID, n := range counts {
			assert.LessOrEqual(t, n, limit, "doc %s", docID)
		}
	}
}

func TestSearch_Surfaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingestText(t, "doc.txt", "vector databases index embeddings")
	note, err := env.memory.Add(ctx, "embeddings drift when the model changes", nil, []string{"ml"})
	require.NoError(t, err)

	memories, err := env.search.Search(ctx, "embeddings", domain.SearchOptions{Surfaces: []domain.Surface{domain.SurfaceMemory}})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, note.ID, memories[0].ID)
	assert.Equal(t, domain.CiteMemory, memories[0].Type)
	assert.Equal(t, domain.SurfaceMemory, memories[0].Surface)

	both, err := env.search.Search(ctx, "embeddings", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	_, err = env.search.Search(ctx, "embeddings", domain.SearchOptions{Surfaces: []domain.Surface{"web"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.search.Search(ctx, "embeddings", domain.SearchOptions{VectorWeight: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_EmbeddingFailureFallsBackToText(t *testing.T) {
	env := newTestEnv(t)
	seedTransformerDocs(t, env)
	env.embedder.fail(errors.New("timeout"))

	results, err := env.search.Search(context.Background(), "transformer", domain.SearchOptions{K: 5})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_WithoutEmbedder(t *testing.T) {
	env := newTestEnv(t)
	env.ingestText(t, "doc.txt", "plain keyword retrieval")
	search := NewSearchService(env.store, nil, plainNormalisers{})

	results, err := search.Search(context.Background(), "keyword", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Score, 1e-9)
}

func TestSearch_EmptyQuery(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.search.Search(context.Background(), "   ", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_SkipsRetiredContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ingestText(t, "a.txt", "obsolete paragraph about zeppelins")
	env.ingestText(t, "a.txt", "current paragraph about airships")

	results, err := env.search.Search(ctx, "zeppelins", domain.SearchOptions{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Quote, "zeppelins")
	}
}

func TestSearch_InterleavesTopics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.memory.Add(ctx, "graph graph graph storage", nil, []string{"graphs"})
	require.NoError(t, err)
	_, err = env.memory.Add(ctx, "graph graph storage notes", nil, []string{"graphs"})
	require.NoError(t, err)
	_, err = env.memory.Add(ctx, "graph index", nil, []string{"indexes"})
	require.NoError(t, err)

	results, err := env.search.Search(ctx, "graph", domain.SearchOptions{Surfaces: []domain.Surface{domain.SurfaceMemory}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	topics := make([]string, 0, len(results))
	for _, r := range results {
		ids, err := env.store.Neighbors(ctx, r.ID, domain.EdgeHasTopic, domain.Outgoing)
		require.NoError(t, err)
		topics = append(topics, ids[0])
	}
	assert.NotEqual(t, topics[0], topics[1], "first two results share a topic: %v", topics)
}

func TestNormalise(t *testing.T) {
	got := normalise([]domain.Candidate{{ID: "a", Score: 4}, {ID: "b", Score: 2}, {ID: "c", Score: 3}})
	assert.InDelta(t, 1.0, got["a"], 1e-9)
	assert.InDelta(t, 0.0, got["b"], 1e-9)
	assert.InDelta(t, 0.5, got["c"], 1e-9)

	equal := normalise([]domain.Candidate{{ID: "a", Score: 7}, {ID: "b", Score: 7}})
	assert.Equal(t, map[string]float64{"a": 1, "b": 1}, equal)
	assert.Empty(t, normalise(nil))
}

func TestFuse_TieBreaks(t *testing.T) {
	vector := []domain.Candidate{
		{ID: "m-2", Kind: domain.NodeMemory, Score: 0.9},
		{ID: "m-1", Kind: domain.NodeMemory, Score: 0.1},
	}
	text := []domain.Candidate{
		{ID: "m-1", Kind: domain.NodeMemory, Score: 5},
		{ID: "m-2", Kind: domain.NodeMemory, Score: 1},
		{ID: "m-3", Kind: domain.NodeMemory, Score: 1},
	}

	hits := fuse(vector, text, 0.5, 0.5)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
	}
	// m-1 and m-2 tie on fused score; m-1 wins on text.
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, ids)
	assert.InDelta(t, 0.5, hits[0].score, 1e-9)

	equal := fuse(nil, []domain.Candidate{{ID: "m-b", Score: 1}, {ID: "m-a", Score: 1}}, 0.5, 0.5)
	assert.Equal(t, "m-a", equal[0].id)
}

func TestFuse_Monotonic(t *testing.T) {
	text := []domain.Candidate{{ID: "x", Score: 3}, {ID: "y", Score: 2}, {ID: "z", Score: 1}}
	hits := fuse(nil, text, 0.3, 0.7)
	assert.True(t, sort.SliceIsSorted(hits, func(i, j int) bool { return hits[i].score > hits[j].score }))
	assert.Equal(t, "x", hits[0].id)
}

func TestCapPerDoc(t *testing.T) {
	docA := strings.Repeat("a", domain.DocIDLength)
	docB := strings.Repeat("b", domain.DocIDLength)
	chunk := func(doc string, start int) fusedHit {
		span := domain.Span{Kind: domain.LocatorChar, Start: start, End: start + 10}
		return fusedHit{id: domain.FormatChunkID(doc, span), kind: domain.NodeChunk}
	}
	hits := []fusedHit{
		chunk(docA, 0), chunk(docA, 10), chunk(docB, 0),
		{id: "m-1", kind: domain.NodeMemory}, chunk(docA, 20), {id: "m-2", kind: domain.NodeMemory},
	}

	capped := capPerDoc(hits, 1)
	require.Len(t, capped, 4)
	assert.Equal(t, hits[0].id, capped[0].id)
	assert.Equal(t, hits[2].id, capped[1].id)
	assert.Equal(t, "m-1", capped[2].id)
	assert.Equal(t, "m-2", capped[3].id)

	assert.Len(t, capPerDoc(hits, 2), 5)
}

func TestInterleave(t *testing.T) {
	hits := []fusedHit{{id: "a1"}, {id: "a2"}, {id: "a3"}, {id: "b1"}, {id: "solo"}, {id: "b2"}}
	groups := map[string]string{"a1": "A", "a2": "A", "a3": "A", "b1": "B", "b2": "B"}

	out := interleave(hits, groups)
	ids := make([]string, 0, len(out))
	for _, h := range out {
		ids = append(ids, h.id)
	}
	assert.Equal(t, []string{"a1", "b1", "solo", "a2", "b2", "a3"}, ids)
}
