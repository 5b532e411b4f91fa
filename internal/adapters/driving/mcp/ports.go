package mcp

import (
	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides hybrid retrieval.
	Search driving.SearchService

	// Citation mints and checks citations.
	Citation driving.CitationService

	// Distill creates derived memory notes. Optional.
	Distill driving.DistillService

	// Memory authors memory notes directly. Optional.
	Memory driving.MemoryService

	// Graph answers pattern queries and node lookups. Optional.
	Graph driving.GraphService

	// Ingest lists stored documents. Optional.
	Ingest driving.IngestService

	// SearchDefaults are the configured search options that tool input is
	// layered over. Nil means domain.DefaultSearchOptions.
	SearchDefaults *domain.SearchOptions
}

// searchOptions returns a copy of the configured search defaults.
func (p *Ports) searchOptions() domain.SearchOptions {
	if p.SearchDefaults == nil {
		return domain.DefaultSearchOptions()
	}
	opts := *p.SearchDefaults
	opts.Surfaces = append([]domain.Surface(nil), p.SearchDefaults.Surfaces...)
	return opts
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Citation == nil {
		return ErrMissingCitationService
	}
	return nil
}
