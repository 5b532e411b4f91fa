package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"the search query"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Surfaces  []string `json:"surfaces,omitempty" jsonschema:"surfaces to search: memory, grounding (default both)"`
	PerDocCap int      `json:"per_doc_cap,omitempty" jsonschema:"maximum results from one document (default 1)"`
	// Weights are optional overrides of the configured fusion weights.
	VectorWeight float64 `json:"vector_weight,omitempty" jsonschema:"weight of the vector score in fusion (default from config)"`
	TextWeight   float64 `json:"text_weight,omitempty" jsonschema:"weight of the keyword score in fusion (default from config)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []CiteOutput `json:"results"`
	Count   int          `json:"count"`
}

// CiteOutput is a citation as seen by agents.
type CiteOutput struct {
	CiteID         string   `json:"cite_id,omitempty"`
	Type           string   `json:"type"`
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	SHA256         string   `json:"sha256"`
	Locator        string   `json:"locator"`
	Start          int      `json:"start"`
	End            int      `json:"end"`
	Quote          string   `json:"quote"`
	Pre            string   `json:"pre,omitempty"`
	Post           string   `json:"post,omitempty"`
	URL            string   `json:"url,omitempty"`
	Page           int      `json:"page,omitempty"`
	CreatedAt      string   `json:"created_at"`
	RetentionClass string   `json:"retention_class"`
	Tags           []string `json:"tags,omitempty"`
	Score          float64  `json:"score,omitempty"`
	Surface        string   `json:"surface,omitempty"`
}

func toCiteOutput(c *domain.Cite) CiteOutput {
	out := CiteOutput{
		CiteID:         c.CiteID,
		Type:           string(c.Type),
		ID:             c.ID,
		Path:           c.Path,
		SHA256:         c.SHA256,
		Locator:        string(c.Loc.Kind),
		Start:          c.Loc.Start,
		End:            c.Loc.End,
		Quote:          c.Quote,
		Pre:            c.Context.Pre,
		Post:           c.Context.Post,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		RetentionClass: string(c.RetentionClass),
		Tags:           c.Tags,
		Score:          c.Score,
		Surface:        string(c.Surface),
	}
	if c.Source != nil {
		out.URL = c.Source.URL
		out.Page = c.Source.Page
	}
	return out
}

// CiteMakeInput is the input schema for the cite_make tool.
type CiteMakeInput struct {
	TargetID  string   `json:"target_id" jsonschema:"doc, chunk or memory id to cite"`
	Start     *int     `json:"start,omitempty" jsonschema:"span start for doc or memory targets"`
	End       *int     `json:"end,omitempty" jsonschema:"span end for doc or memory targets"`
	Locator   string   `json:"locator,omitempty" jsonschema:"span unit: char or tok (default char)"`
	Retention string   `json:"retention,omitempty" jsonschema:"ephemeral, standard, durable or pinned (default standard)"`
	Tags      []string `json:"tags,omitempty" jsonschema:"tags to attach"`
}

// CiteIDInput names a single citation.
type CiteIDInput struct {
	CiteID string `json:"cite_id" jsonschema:"the citation id"`
}

// CiteVerifyOutput is the output schema for the cite_verify tool.
type CiteVerifyOutput struct {
	CiteID      string             `json:"cite_id"`
	Valid       bool               `json:"valid"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty"`
}

// DiagnosticOutput is one verification finding.
type DiagnosticOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CiteOpenOutput is the output schema for the cite_open tool.
type CiteOpenOutput struct {
	CiteID string `json:"cite_id"`
	Path   string `json:"path"`
	Quote  string `json:"quote"`
	Pre    string `json:"pre"`
	Post   string `json:"post"`
}

// CiteListInput is the input schema for the cite_list tool.
type CiteListInput struct {
	Tags       []string `json:"tags,omitempty" jsonschema:"only citations with all of these tags"`
	Types      []string `json:"types,omitempty" jsonschema:"only these types: doc, chunk, memory"`
	Retentions []string `json:"retentions,omitempty" jsonschema:"only these retention classes"`
	Status     string   `json:"status,omitempty" jsonschema:"only citations with this status: valid or drifted"`
}

// CiteListOutput is the output schema for the cite_list tool.
type CiteListOutput struct {
	Citations []CiteSummaryOutput `json:"citations"`
	Count     int                 `json:"count"`
}

// CiteSummaryOutput is one listed citation.
type CiteSummaryOutput struct {
	CiteID         string   `json:"cite_id"`
	Type           string   `json:"type"`
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	Quote          string   `json:"quote"`
	RetentionClass string   `json:"retention_class"`
	Tags           []string `json:"tags,omitempty"`
	CreatedAt      string   `json:"created_at"`
	Status         string   `json:"status,omitempty"`
}

// DistillInput is the input schema for the distill tool.
type DistillInput struct {
	Content  string        `json:"content" jsonschema:"the memory note text"`
	From     []string      `json:"from" jsonschema:"citation ids the note is derived from"`
	Tags     []string      `json:"tags,omitempty" jsonschema:"tags for the note"`
	Topics   []string      `json:"topics,omitempty" jsonschema:"topics for the note"`
	Entities []EntityInput `json:"entities,omitempty" jsonschema:"entities the note mentions"`
}

// EntityInput names an entity.
type EntityInput struct {
	Name string `json:"name" jsonschema:"entity name"`
	Type string `json:"type,omitempty" jsonschema:"entity type such as person or project"`
}

// MemoryOutput is a memory note as seen by agents.
type MemoryOutput struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"`
	Tags      []string `json:"tags,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

func toMemoryOutput(m *domain.MemoryNote) MemoryOutput {
	return MemoryOutput{
		ID:        m.ID,
		Text:      m.Text,
		Timestamp: m.Timestamp.Format(time.RFC3339),
		Tags:      m.Tags,
		Topics:    m.Topics,
	}
}

// MemoryAddInput is the input schema for the memory_add tool.
type MemoryAddInput struct {
	Text   string   `json:"text" jsonschema:"the memory note text"`
	Tags   []string `json:"tags,omitempty" jsonschema:"tags for the note"`
	Topics []string `json:"topics,omitempty" jsonschema:"topics for the note"`
}

// MemoryListInput is the input schema for the memory_list tool.
type MemoryListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of notes (default 20)"`
}

// MemoryListOutput is the output schema for the memory_list tool.
type MemoryListOutput struct {
	Memories []MemoryOutput `json:"memories"`
	Count    int            `json:"count"`
}

// GraphQueryInput is the input schema for the graph_query tool.
type GraphQueryInput struct {
	Pattern string `json:"pattern" jsonschema:"path pattern such as 'MemoryNote -HasTopic-> Topic'"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of matches (default 50)"`
}

// GraphQueryOutput is the output schema for the graph_query tool.
type GraphQueryOutput struct {
	Paths [][]string `json:"paths"`
	Count int        `json:"count"`
}

// DocumentListInput is the input schema for the document_list tool.
type DocumentListInput struct {
	IncludeRetired bool `json:"include_retired,omitempty" jsonschema:"also list documents replaced by a later ingestion"`
}

// DocumentListOutput is the output schema for the document_list tool.
type DocumentListOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput is an ingested document as seen by agents.
type DocumentOutput struct {
	ID         string `json:"id"`
	Path       string `json:"path,omitempty"`
	SHA256     string `json:"sha256"`
	URL        string `json:"url,omitempty"`
	IngestedAt string `json:"ingested_at"`
	Retired    bool   `json:"retired,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
// Tools backed by optional ports are registered only when the port is set.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid keyword and vector search over memories and document chunks. Returns transient citations.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cite_make",
		Description: "Persist a citation for a doc, chunk or memory id, optionally narrowed to a span",
	}, s.handleCiteMake)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cite_verify",
		Description: "Check a citation against the current content of its source",
	}, s.handleCiteVerify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cite_open",
		Description: "Return a citation's quote with surrounding context",
	}, s.handleCiteOpen)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cite_list",
		Description: "List stored citations",
	}, s.handleCiteList)

	if s.ports.Distill != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "distill",
			Description: "Create a memory note derived from one or more citations",
		}, s.handleDistill)
	}

	if s.ports.Memory != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "memory_add",
			Description: "Store a memory note",
		}, s.handleMemoryAdd)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "memory_list",
			Description: "List memory notes, newest first",
		}, s.handleMemoryList)
	}

	if s.ports.Graph != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "graph_query",
			Description: "Match a path pattern against the knowledge graph",
		}, s.handleGraphQuery)
	}

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "document_list",
			Description: "List ingested documents with their ids and current paths",
		}, s.handleDocumentList)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := s.ports.searchOptions()
	if input.Limit > 0 {
		opts.K = input.Limit
	}
	if input.PerDocCap > 0 {
		opts.PerDocCap = input.PerDocCap
	}
	if input.VectorWeight > 0 {
		opts.VectorWeight = input.VectorWeight
	}
	if input.TextWeight > 0 {
		opts.TextWeight = input.TextWeight
	}
	if len(input.Surfaces) > 0 {
		opts.Surfaces = make([]domain.Surface, len(input.Surfaces))
		for i, surface := range input.Surfaces {
			opts.Surfaces[i] = domain.Surface(surface)
		}
	}

	results, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]CiteOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = toCiteOutput(&results[i])
	}
	return nil, output, nil
}

// handleCiteMake handles the cite_make tool invocation.
func (s *Server) handleCiteMake(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CiteMakeInput,
) (*mcp.CallToolResult, CiteOutput, error) {
	req := driving.MakeRequest{
		TargetID:       input.TargetID,
		RetentionClass: domain.RetentionClass(input.Retention),
		Tags:           input.Tags,
	}
	if input.Start != nil || input.End != nil {
		span := &domain.Span{Kind: domain.LocatorChar, Start: -1, End: -1}
		if input.Locator != "" {
			span.Kind = domain.LocatorKind(input.Locator)
		}
		if input.Start != nil {
			span.Start = *input.Start
		}
		if input.End != nil {
			span.End = *input.End
		}
		req.Locator = span
	}

	cite, err := s.ports.Citation.Make(ctx, req)
	if err != nil {
		return nil, CiteOutput{}, err
	}
	return nil, toCiteOutput(cite), nil
}

// handleCiteVerify handles the cite_verify tool invocation.
func (s *Server) handleCiteVerify(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CiteIDInput,
) (*mcp.CallToolResult, CiteVerifyOutput, error) {
	v, err := s.ports.Citation.Verify(ctx, input.CiteID)
	if err != nil {
		return nil, CiteVerifyOutput{}, err
	}

	output := CiteVerifyOutput{CiteID: v.CiteID, Valid: v.Valid}
	for _, d := range v.Diagnostics {
		output.Diagnostics = append(output.Diagnostics, DiagnosticOutput{Code: d.Code, Message: d.Message})
	}
	return nil, output, nil
}

// handleCiteOpen handles the cite_open tool invocation.
func (s *Server) handleCiteOpen(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CiteIDInput,
) (*mcp.CallToolResult, CiteOpenOutput, error) {
	opened, err := s.ports.Citation.Open(ctx, input.CiteID)
	if err != nil {
		return nil, CiteOpenOutput{}, err
	}
	return nil, CiteOpenOutput{
		CiteID: opened.CiteID,
		Path:   opened.Path,
		Quote:  opened.Quote,
		Pre:    opened.Context.Pre,
		Post:   opened.Context.Post,
	}, nil
}

// handleCiteList handles the cite_list tool invocation.
func (s *Server) handleCiteList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CiteListInput,
) (*mcp.CallToolResult, CiteListOutput, error) {
	filter := domain.CiteFilter{
		Tags:   input.Tags,
		Status: domain.CiteStatus(input.Status),
	}
	for _, t := range input.Types {
		filter.Types = append(filter.Types, domain.CiteType(t))
	}
	for _, r := range input.Retentions {
		filter.RetentionClasses = append(filter.RetentionClasses, domain.RetentionClass(r))
	}

	summaries, err := s.ports.Citation.List(ctx, filter)
	if err != nil {
		return nil, CiteListOutput{}, err
	}

	output := CiteListOutput{
		Citations: make([]CiteSummaryOutput, len(summaries)),
		Count:     len(summaries),
	}
	for i, c := range summaries {
		output.Citations[i] = CiteSummaryOutput{
			CiteID:         c.CiteID,
			Type:           string(c.Type),
			ID:             c.ID,
			Path:           c.Path,
			Quote:          c.Quote,
			RetentionClass: string(c.RetentionClass),
			Tags:           c.Tags,
			CreatedAt:      c.CreatedAt.Format(time.RFC3339),
			Status:         string(c.Status),
		}
	}
	return nil, output, nil
}

// handleDistill handles the distill tool invocation.
func (s *Server) handleDistill(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DistillInput,
) (*mcp.CallToolResult, MemoryOutput, error) {
	entities := make([]domain.Entity, len(input.Entities))
	for i, e := range input.Entities {
		entities[i] = domain.NewEntity(e.Name, e.Type)
	}

	note, err := s.ports.Distill.Distill(ctx, driving.DistillRequest{
		Content:       input.Content,
		SourceCiteIDs: input.From,
		Tags:          input.Tags,
		Topics:        input.Topics,
		Entities:      entities,
	})
	if err != nil {
		return nil, MemoryOutput{}, err
	}
	return nil, toMemoryOutput(note), nil
}

// handleMemoryAdd handles the memory_add tool invocation.
func (s *Server) handleMemoryAdd(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input MemoryAddInput,
) (*mcp.CallToolResult, MemoryOutput, error) {
	note, err := s.ports.Memory.Add(ctx, input.Text, input.Tags, input.Topics)
	if err != nil {
		return nil, MemoryOutput{}, err
	}
	return nil, toMemoryOutput(note), nil
}

// handleMemoryList handles the memory_list tool invocation.
func (s *Server) handleMemoryList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input MemoryListInput,
) (*mcp.CallToolResult, MemoryListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	notes, err := s.ports.Memory.List(ctx, limit)
	if err != nil {
		return nil, MemoryListOutput{}, err
	}

	output := MemoryListOutput{
		Memories: make([]MemoryOutput, len(notes)),
		Count:    len(notes),
	}
	for i := range notes {
		output.Memories[i] = toMemoryOutput(&notes[i])
	}
	return nil, output, nil
}

// handleGraphQuery handles the graph_query tool invocation.
func (s *Server) handleGraphQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GraphQueryInput,
) (*mcp.CallToolResult, GraphQueryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	paths, err := s.ports.Graph.Query(ctx, input.Pattern, limit)
	if err != nil {
		return nil, GraphQueryOutput{}, err
	}

	output := GraphQueryOutput{
		Paths: make([][]string, len(paths)),
		Count: len(paths),
	}
	for i, p := range paths {
		output.Paths[i] = p
	}
	return nil, output, nil
}

// handleDocumentList handles the document_list tool invocation.
func (s *Server) handleDocumentList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentListInput,
) (*mcp.CallToolResult, DocumentListOutput, error) {
	docs, err := s.ports.Ingest.ListDocs(ctx, input.IncludeRetired)
	if err != nil {
		return nil, DocumentListOutput{}, err
	}

	output := DocumentListOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i, d := range docs {
		out := DocumentOutput{
			ID:         d.ID,
			Path:       d.Path,
			SHA256:     d.SHA256,
			IngestedAt: d.IngestedAt.UTC().Format(time.RFC3339),
			Retired:    d.Retired,
		}
		if d.Source != nil {
			out.URL = d.Source.URL
		}
		output.Documents[i] = out
	}
	return nil, output, nil
}
