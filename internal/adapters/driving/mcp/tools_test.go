package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var created = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleCite() domain.Cite {
	return domain.Cite{
		CiteID:         "cite-abc",
		Type:           domain.CiteChunk,
		ID:             "3f2a9c0b1d2e#char:0-11",
		Path:           "/notes/a.md",
		SHA256:         "3f2a9c0b1d2e" + "00",
		Loc:            domain.CiteLoc{Kind: domain.LocatorChar, Start: 0, End: 11},
		Quote:          "hello world",
		Context:        domain.CiteContext{Post: " and more"},
		Source:         &domain.CiteSource{URL: "https://example.com", Page: 3},
		CreatedAt:      created,
		RetentionClass: domain.RetentionStandard,
		Tags:           []string{"x"},
		Score:          0.75,
		Surface:        domain.SurfaceGrounding,
	}
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns transient citations", func(t *testing.T) {
		mockSearch := &mockSearchService{results: []domain.Cite{sampleCite()}}
		server, err := NewServer(&Ports{Search: mockSearch, Citation: &mockCitationService{}})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "hello", Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		r := output.Results[0]
		assert.Equal(t, "3f2a9c0b1d2e#char:0-11", r.ID)
		assert.Equal(t, "chunk", r.Type)
		assert.Equal(t, "/notes/a.md", r.Path)
		assert.Equal(t, "char", r.Locator)
		assert.Equal(t, 11, r.End)
		assert.Equal(t, "hello world", r.Quote)
		assert.Equal(t, " and more", r.Post)
		assert.Equal(t, "https://example.com", r.URL)
		assert.Equal(t, 3, r.Page)
		assert.Equal(t, "2025-03-01T12:00:00Z", r.CreatedAt)
		assert.Equal(t, 0.75, r.Score)
		assert.Equal(t, "grounding", r.Surface)
		assert.Equal(t, 5, mockSearch.lastOpts.K)
	})

	t.Run("defaults apply when unset", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch, Citation: &mockCitationService{}})
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, domain.DefaultSearchOptions(), mockSearch.lastOpts)
	})

	t.Run("configured defaults are layered under input", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		configured := domain.DefaultSearchOptions()
		configured.K = 25
		configured.PerDocCap = 3
		configured.VectorWeight = 0.8
		configured.TextWeight = 0.2
		server, err := NewServer(&Ports{Search: mockSearch, Citation: &mockCitationService{}, SearchDefaults: &configured})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})
		require.NoError(t, err)
		assert.Equal(t, 25, mockSearch.lastOpts.K)
		assert.Equal(t, 3, mockSearch.lastOpts.PerDocCap)
		assert.InDelta(t, 0.8, mockSearch.lastOpts.VectorWeight, 1e-9)
		assert.InDelta(t, 0.2, mockSearch.lastOpts.TextWeight, 1e-9)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test", Limit: 4, TextWeight: 0.6})
		require.NoError(t, err)
		assert.Equal(t, 4, mockSearch.lastOpts.K)
		assert.InDelta(t, 0.8, mockSearch.lastOpts.VectorWeight, 1e-9)
		assert.InDelta(t, 0.6, mockSearch.lastOpts.TextWeight, 1e-9)
		assert.Equal(t, 25, configured.K)
	})

	t.Run("surfaces and per-doc cap are passed through", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch, Citation: &mockCitationService{}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "q", Surfaces: []string{"memory"}, PerDocCap: 3})

		require.NoError(t, err)
		assert.Equal(t, []domain.Surface{domain.SurfaceMemory}, mockSearch.lastOpts.Surfaces)
		assert.Equal(t, 3, mockSearch.lastOpts.PerDocCap)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		mockSearch := &mockSearchService{err: errors.New("search failed")}
		server, err := NewServer(&Ports{Search: mockSearch, Citation: &mockCitationService{}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleCiteMake(t *testing.T) {
	ctx := context.Background()

	t.Run("whole target", func(t *testing.T) {
		c := sampleCite()
		cites := &mockCitationService{cite: &c}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
		require.NoError(t, err)

		_, out, err := server.handleCiteMake(ctx, nil, CiteMakeInput{TargetID: c.ID, Retention: "durable", Tags: []string{"t"}})

		require.NoError(t, err)
		assert.Equal(t, "cite-abc", out.CiteID)
		assert.Nil(t, cites.lastMake.Locator)
		assert.Equal(t, domain.RetentionDurable, cites.lastMake.RetentionClass)
		assert.Equal(t, []string{"t"}, cites.lastMake.Tags)
	})

	t.Run("start only leaves end open", func(t *testing.T) {
		c := sampleCite()
		cites := &mockCitationService{cite: &c}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
		require.NoError(t, err)

		start := 4
		_, _, err = server.handleCiteMake(ctx, nil, CiteMakeInput{TargetID: "3f2a9c0b1d2e", Start: &start, Locator: "tok"})

		require.NoError(t, err)
		require.NotNil(t, cites.lastMake.Locator)
		assert.Equal(t, domain.Span{Kind: domain.LocatorTok, Start: 4, End: -1}, *cites.lastMake.Locator)
	})

	t.Run("service error", func(t *testing.T) {
		cites := &mockCitationService{err: domain.ErrNotFound}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
		require.NoError(t, err)

		_, _, err = server.handleCiteMake(ctx, nil, CiteMakeInput{TargetID: "missing"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleCiteVerify(t *testing.T) {
	cites := &mockCitationService{verification: &domain.Verification{
		CiteID: "cite-abc",
		Valid:  false,
		Diagnostics: []domain.Diagnostic{
			{Code: domain.DiagContentMismatch, Message: "content changed"},
		},
	}}
	server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
	require.NoError(t, err)

	_, out, err := server.handleCiteVerify(context.Background(), nil, CiteIDInput{CiteID: "cite-abc"})

	require.NoError(t, err)
	assert.False(t, out.Valid)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, domain.DiagContentMismatch, out.Diagnostics[0].Code)
}

func TestServer_handleCiteOpen(t *testing.T) {
	cites := &mockCitationService{opened: &domain.OpenedCite{
		CiteID:  "cite-abc",
		Path:    "/notes/a.md",
		Quote:   "world",
		Context: domain.CiteContext{Pre: "hello ", Post: "!"},
	}}
	server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
	require.NoError(t, err)

	_, out, err := server.handleCiteOpen(context.Background(), nil, CiteIDInput{CiteID: "cite-abc"})

	require.NoError(t, err)
	assert.Equal(t, CiteOpenOutput{CiteID: "cite-abc", Path: "/notes/a.md", Quote: "world", Pre: "hello ", Post: "!"}, out)
}

func TestServer_handleCiteList(t *testing.T) {
	cites := &mockCitationService{summaries: []domain.CiteSummary{
		{CiteID: "cite-1", Type: domain.CiteDoc, ID: "3f2a9c0b1d2e", CreatedAt: created, RetentionClass: domain.RetentionPinned},
	}}
	server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: cites})
	require.NoError(t, err)

	_, out, err := server.handleCiteList(context.Background(), nil, CiteListInput{
		Tags:       []string{"a"},
		Types:      []string{"doc"},
		Retentions: []string{"pinned"},
		Status:     "valid",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "pinned", out.Citations[0].RetentionClass)
	assert.Equal(t, []domain.CiteType{domain.CiteDoc}, cites.lastFilter.Types)
	assert.Equal(t, []domain.RetentionClass{domain.RetentionPinned}, cites.lastFilter.RetentionClasses)
	assert.Equal(t, domain.CiteStatusValid, cites.lastFilter.Status)
	assert.Equal(t, []string{"a"}, cites.lastFilter.Tags)
}

func TestServer_handleDistill(t *testing.T) {
	distill := &mockDistillService{note: &domain.MemoryNote{ID: "mem-9", Text: "summary", Timestamp: created}}
	ports := fullPorts()
	ports.Distill = distill
	server, err := NewServer(ports)
	require.NoError(t, err)

	_, out, err := server.handleDistill(context.Background(), nil, DistillInput{
		Content:  "summary",
		From:     []string{"cite-1"},
		Entities: []EntityInput{{Name: "Ada Lovelace", Type: "person"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "mem-9", out.ID)
	assert.Equal(t, []string{"cite-1"}, distill.lastReq.SourceCiteIDs)
	require.Len(t, distill.lastReq.Entities, 1)
	assert.Equal(t, domain.NewEntity("Ada Lovelace", "person"), distill.lastReq.Entities[0])
}

func TestServer_handleMemory(t *testing.T) {
	mem := &mockMemoryService{notes: []domain.MemoryNote{{ID: "mem-1", Text: "a", Timestamp: created}}}
	ports := fullPorts()
	ports.Memory = mem
	server, err := NewServer(ports)
	require.NoError(t, err)

	_, added, err := server.handleMemoryAdd(context.Background(), nil, MemoryAddInput{Text: "remember", Tags: []string{"t"}})
	require.NoError(t, err)
	assert.Equal(t, "remember", added.Text)
	assert.Equal(t, []string{"t"}, added.Tags)

	_, listed, err := server.handleMemoryList(context.Background(), nil, MemoryListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, listed.Count)
	assert.Equal(t, 20, mem.lastLimit)
}

func TestServer_handleGraphQuery(t *testing.T) {
	graph := &mockGraphService{paths: []domain.Path{{"mem-1", "topic-go", "mem-2"}}}
	ports := fullPorts()
	ports.Graph = graph
	server, err := NewServer(ports)
	require.NoError(t, err)

	_, out, err := server.handleGraphQuery(context.Background(), nil, GraphQueryInput{
		Pattern: "MemoryNote -HasTopic-> Topic <-HasTopic- MemoryNote",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, []string{"mem-1", "topic-go", "mem-2"}, out.Paths[0])
	assert.Equal(t, 50, graph.lastLimit)
}

func TestServer_handleDocumentList(t *testing.T) {
	ctx := context.Background()

	t.Run("lists documents", func(t *testing.T) {
		ingest := &mockIngestService{docs: []domain.DocSummary{
			{ID: "3f2a9c0b1d2e4455", Path: "/notes/a.md", SHA256: "3f2a9c0b1d2e445500", IngestedAt: created,
				Source: &domain.CiteSource{URL: "https://example.com"}},
			{ID: "0123456789abcdef", SHA256: "0123456789abcdef00", IngestedAt: created, Retired: true},
		}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: &mockCitationService{}, Ingest: ingest})
		require.NoError(t, err)

		_, output, err := server.handleDocumentList(ctx, nil, DocumentListInput{IncludeRetired: true})

		require.NoError(t, err)
		assert.True(t, ingest.lastRetired)
		assert.Equal(t, 2, output.Count)
		require.Len(t, output.Documents, 2)
		assert.Equal(t, "/notes/a.md", output.Documents[0].Path)
		assert.Equal(t, "https://example.com", output.Documents[0].URL)
		assert.Equal(t, "2025-03-01T12:00:00Z", output.Documents[0].IngestedAt)
		assert.True(t, output.Documents[1].Retired)
	})

	t.Run("propagates errors", func(t *testing.T) {
		ingest := &mockIngestService{err: errors.New("store closed")}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Citation: &mockCitationService{}, Ingest: ingest})
		require.NoError(t, err)

		_, _, err = server.handleDocumentList(ctx, nil, DocumentListInput{})
		assert.Error(t, err)
	})
}
