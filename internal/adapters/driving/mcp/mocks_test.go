package mcp

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.Cite
	err      error
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, _ string, opts domain.SearchOptions) ([]domain.Cite, error) {
	m.lastOpts = opts
	return m.results, m.err
}

// mockCitationService is a mock implementation of driving.CitationService.
type mockCitationService struct {
	cite         *domain.Cite
	verification *domain.Verification
	opened       *domain.OpenedCite
	summaries    []domain.CiteSummary
	report       *domain.GCReport
	err          error

	lastMake   driving.MakeRequest
	lastFilter domain.CiteFilter
}

func (m *mockCitationService) Make(_ context.Context, req driving.MakeRequest) (*domain.Cite, error) {
	m.lastMake = req
	return m.cite, m.err
}

func (m *mockCitationService) Verify(_ context.Context, _ string) (*domain.Verification, error) {
	return m.verification, m.err
}

func (m *mockCitationService) Open(_ context.Context, _ string) (*domain.OpenedCite, error) {
	return m.opened, m.err
}

func (m *mockCitationService) List(_ context.Context, filter domain.CiteFilter) ([]domain.CiteSummary, error) {
	m.lastFilter = filter
	return m.summaries, m.err
}

func (m *mockCitationService) GC(_ context.Context, _ domain.GCPolicy) (*domain.GCReport, error) {
	return m.report, m.err
}

// mockDistillService is a mock implementation of driving.DistillService.
type mockDistillService struct {
	note    *domain.MemoryNote
	prompts map[string]string
	err     error
	lastReq driving.DistillRequest
}

func (m *mockDistillService) Distill(_ context.Context, req driving.DistillRequest) (*domain.MemoryNote, error) {
	m.lastReq = req
	return m.note, m.err
}

func (m *mockDistillService) Prompt(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p, nil
}

func (m *mockDistillService) Prompts() []string {
	names := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		names = append(names, name)
	}
	return names
}

// mockMemoryService is a mock implementation of driving.MemoryService.
type mockMemoryService struct {
	note      *domain.MemoryNote
	notes     []domain.MemoryNote
	err       error
	lastLimit int
}

func (m *mockMemoryService) Add(_ context.Context, text string, tags, topics []string) (*domain.MemoryNote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MemoryNote{ID: "mem-1", Text: text, Tags: tags, Topics: topics}, nil
}

func (m *mockMemoryService) Get(_ context.Context, _ string) (*domain.MemoryNote, error) {
	return m.note, m.err
}

func (m *mockMemoryService) Update(_ context.Context, _ string, _ driving.MemoryUpdate) (*domain.MemoryNote, error) {
	return m.note, m.err
}

func (m *mockMemoryService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockMemoryService) List(_ context.Context, limit int) ([]domain.MemoryNote, error) {
	m.lastLimit = limit
	return m.notes, m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	paths     []domain.Path
	node      domain.Node
	stats     domain.GraphStats
	err       error
	lastLimit int
}

func (m *mockGraphService) Query(_ context.Context, _ string, limit int) ([]domain.Path, error) {
	m.lastLimit = limit
	return m.paths, m.err
}

func (m *mockGraphService) Node(_ context.Context, _ string) (domain.Node, error) {
	return m.node, m.err
}

func (m *mockGraphService) Stats(_ context.Context) (domain.GraphStats, error) {
	return m.stats, m.err
}

func (m *mockGraphService) RebuildIndexes(_ context.Context) error {
	return m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
// Only ListDocs is used by the server.
type mockIngestService struct {
	docs        []domain.DocSummary
	err         error
	lastRetired bool
}

func (m *mockIngestService) Ingest(_ context.Context, _ string, _ driving.IngestOptions) (*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestService) IngestBatch(_ context.Context, _ []string, _ driving.IngestOptions) (*domain.IngestReport, error) {
	return nil, m.err
}

func (m *mockIngestService) IngestDir(_ context.Context, _ string, _ driving.IngestOptions) (*domain.IngestReport, error) {
	return nil, m.err
}

func (m *mockIngestService) ListDocs(_ context.Context, includeRetired bool) ([]domain.DocSummary, error) {
	m.lastRetired = includeRetired
	return m.docs, m.err
}

func (m *mockIngestService) Relocate(_ context.Context, _, _ string) error {
	return m.err
}

func (m *mockIngestService) Relink(_ context.Context, _ string) (string, error) {
	return "", m.err
}

func (m *mockIngestService) Watch(_ context.Context, _ []string, _ driving.IngestOptions, _ func(domain.IngestResult)) error {
	return m.err
}
