package cli

import (
	"context"
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

var errMock = errors.New("mock failure")

var mockTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	mockDocID   = "3f2a9c0b1d2e"
	mockChunkID = mockDocID + "#char:0-11"
)

// setupTestServices installs mock services, resets flag state left by
// earlier executions and returns a function restoring the previous services.
func setupTestServices() func() {
	oldIngest, oldSearch, oldCitation := ingestService, searchService, citationService
	oldDistill, oldMemory, oldGraph, oldSettings := distillService, memoryService, graphService, settingsService
	oldCheck := embeddingCheck
	oldNoColor := color.NoColor

	color.NoColor = true
	resetFlags(rootCmd)
	SetServices(Services{
		Ingest:   &mockIngestService{},
		Search:   &mockSearchService{},
		Citation: &mockCitationService{},
		Distill:  &mockDistillService{},
		Memory:   &mockMemoryService{},
		Graph:    &mockGraphService{},
		Settings: newMockSettingsService(),
	})

	return func() {
		ingestService, searchService, citationService = oldIngest, oldSearch, oldCitation
		distillService, memoryService, graphService, settingsService = oldDistill, oldMemory, oldGraph, oldSettings
		embeddingCheck = oldCheck
		color.NoColor = oldNoColor
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}
}

// resetFlags restores every flag in the tree to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func sampleCite() domain.Cite {
	return domain.Cite{
		CiteID:         "cite-abc",
		Type:           domain.CiteChunk,
		ID:             mockChunkID,
		Path:           "/notes/a.md",
		SHA256:         mockDocID + "aa",
		Loc:            domain.CiteLoc{Kind: domain.LocatorChar, Start: 0, End: 11},
		Quote:          "hello world",
		Context:        domain.CiteContext{Pre: "", Post: " and more"},
		CreatedAt:      mockTime,
		RetentionClass: domain.RetentionStandard,
		Score:          0.87,
		Surface:        domain.SurfaceGrounding,
	}
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	results  []domain.IngestResult
	err      error
	lastOpts driving.IngestOptions
	paths    []string
	relinked string
	docs     []domain.DocSummary
	retired  bool
}

func (m *mockIngestService) Ingest(_ context.Context, path string, opts driving.IngestOptions) (*domain.IngestResult, error) {
	m.lastOpts = opts
	m.paths = append(m.paths, path)
	return &domain.IngestResult{Path: path, DocID: mockDocID, Chunks: 1}, m.err
}

func (m *mockIngestService) IngestBatch(_ context.Context, paths []string, opts driving.IngestOptions) (*domain.IngestReport, error) {
	m.lastOpts = opts
	m.paths = append(m.paths, paths...)
	if m.results != nil {
		return &domain.IngestReport{Results: m.results}, m.err
	}
	report := &domain.IngestReport{}
	for _, p := range paths {
		report.Results = append(report.Results, domain.IngestResult{Path: p, DocID: mockDocID, Chunks: 2})
	}
	return report, m.err
}

func (m *mockIngestService) IngestDir(_ context.Context, root string, opts driving.IngestOptions) (*domain.IngestReport, error) {
	m.lastOpts = opts
	m.paths = append(m.paths, root)
	return &domain.IngestReport{Results: m.results}, m.err
}

func (m *mockIngestService) ListDocs(_ context.Context, includeRetired bool) ([]domain.DocSummary, error) {
	m.retired = includeRetired
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.DocSummary
	for _, d := range m.docs {
		if includeRetired || !d.Retired {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockIngestService) Relocate(_ context.Context, _, path string) error {
	m.relinked = path
	return m.err
}

func (m *mockIngestService) Relink(_ context.Context, path string) (string, error) {
	m.relinked = path
	if m.err != nil {
		return "", m.err
	}
	return mockDocID, nil
}

func (m *mockIngestService) Watch(_ context.Context, _ []string, _ driving.IngestOptions, report func(domain.IngestResult)) error {
	for _, r := range m.results {
		report(r)
	}
	return m.err
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.Cite
	err      error
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, _ string, opts domain.SearchOptions) ([]domain.Cite, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.results != nil {
		return m.results, nil
	}
	return []domain.Cite{sampleCite()}, nil
}

// mockCitationService is a mock implementation of driving.CitationService.
type mockCitationService struct {
	verifications map[string]*domain.Verification
	summaries     []domain.CiteSummary
	err           error
	lastMake      driving.MakeRequest
	lastFilter    domain.CiteFilter
	lastPolicy    domain.GCPolicy
}

func (m *mockCitationService) Make(_ context.Context, req driving.MakeRequest) (*domain.Cite, error) {
	m.lastMake = req
	if m.err != nil {
		return nil, m.err
	}
	c := sampleCite()
	c.ID = req.TargetID
	c.RetentionClass = req.RetentionClass
	return &c, nil
}

func (m *mockCitationService) Verify(_ context.Context, citeID string) (*domain.Verification, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.verifications[citeID]; ok {
		return v, nil
	}
	return &domain.Verification{CiteID: citeID, Valid: true}, nil
}

func (m *mockCitationService) Open(_ context.Context, citeID string) (*domain.OpenedCite, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.OpenedCite{
		CiteID:  citeID,
		Path:    "/notes/a.md",
		Quote:   "world",
		Context: domain.CiteContext{Pre: "hello ", Post: "!"},
	}, nil
}

func (m *mockCitationService) List(_ context.Context, filter domain.CiteFilter) ([]domain.CiteSummary, error) {
	m.lastFilter = filter
	return m.summaries, m.err
}

func (m *mockCitationService) GC(_ context.Context, policy domain.GCPolicy) (*domain.GCReport, error) {
	m.lastPolicy = policy
	if m.err != nil {
		return nil, m.err
	}
	return &domain.GCReport{Removed: []string{"cite-old"}, Kept: 3, DryRun: policy.DryRun}, nil
}

// mockDistillService is a mock implementation of driving.DistillService.
type mockDistillService struct {
	err     error
	lastReq driving.DistillRequest
}

func (m *mockDistillService) Distill(_ context.Context, req driving.DistillRequest) (*domain.MemoryNote, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MemoryNote{ID: "mem-distilled", Text: req.Content, Timestamp: mockTime, Tags: req.Tags}, nil
}

func (m *mockDistillService) Prompt(name string) (string, error) {
	if name != "summarise" {
		return "", domain.ErrNotFound
	}
	return "Summarise the cited passages.", nil
}

func (m *mockDistillService) Prompts() []string {
	return []string{"summarise"}
}

// mockMemoryService is a mock implementation of driving.MemoryService.
type mockMemoryService struct {
	notes      []domain.MemoryNote
	err        error
	lastUpdate driving.MemoryUpdate
	deleted    string
	lastLimit  int
}

func (m *mockMemoryService) Add(_ context.Context, text string, tags, topics []string) (*domain.MemoryNote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MemoryNote{ID: "mem-new", Text: text, Tags: tags, Topics: topics, Timestamp: mockTime}, nil
}

func (m *mockMemoryService) Get(_ context.Context, id string) (*domain.MemoryNote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MemoryNote{ID: id, Text: "stored note", Tags: []string{"a"}, Timestamp: mockTime}, nil
}

func (m *mockMemoryService) Update(_ context.Context, id string, update driving.MemoryUpdate) (*domain.MemoryNote, error) {
	m.lastUpdate = update
	if m.err != nil {
		return nil, m.err
	}
	note := &domain.MemoryNote{ID: id, Text: "stored note", Timestamp: mockTime}
	if update.Text != nil {
		note.Text = *update.Text
	}
	return note, nil
}

func (m *mockMemoryService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockMemoryService) List(_ context.Context, limit int) ([]domain.MemoryNote, error) {
	m.lastLimit = limit
	return m.notes, m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	paths     []domain.Path
	node      *domain.Node
	err       error
	rebuilt   bool
	lastLimit int
}

func (m *mockGraphService) Query(_ context.Context, _ string, limit int) ([]domain.Path, error) {
	m.lastLimit = limit
	return m.paths, m.err
}

func (m *mockGraphService) Node(_ context.Context, id string) (domain.Node, error) {
	if m.err != nil {
		return domain.Node{}, m.err
	}
	if m.node != nil {
		return *m.node, nil
	}
	return domain.MemoryNode(domain.MemoryNote{ID: id, Text: "a note"}), nil
}

func (m *mockGraphService) Stats(_ context.Context) (domain.GraphStats, error) {
	return domain.GraphStats{
		Nodes:     map[domain.NodeKind]int{domain.NodeDoc: 2, domain.NodeChunk: 7},
		Edges:     map[domain.EdgeKind]int{},
		Citations: 3,
	}, m.err
}

func (m *mockGraphService) RebuildIndexes(_ context.Context) error {
	m.rebuilt = true
	return m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings    domain.AppSettings
	set         map[string]string
	validateErr error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings(), set: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if key == "unknown.key" {
		return domain.ErrInvalidInput
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}
