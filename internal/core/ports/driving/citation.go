package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// MakeRequest describes a citation to persist.
type MakeRequest struct {
	// TargetID is a doc, chunk or memory id.
	TargetID string

	// Locator narrows a doc or memory target to a span. Chunk targets use
	// their own span and ignore it.
	Locator *domain.Span

	// RetentionClass defaults to standard.
	RetentionClass domain.RetentionClass

	Tags   []string
	Source *domain.CiteSource
}

// CitationService manages the citation lifecycle.
type CitationService interface {
	// Make resolves the target now and writes an immutable record.
	Make(ctx context.Context, req MakeRequest) (*domain.Cite, error)

	// Verify compares a record with the current state. Drift is reported in
	// the result, never as an error.
	Verify(ctx context.Context, citeID string) (*domain.Verification, error)

	// Open returns display-ready data without mutating state.
	Open(ctx context.Context, citeID string) (*domain.OpenedCite, error)

	// List enumerates records matching the filter.
	List(ctx context.Context, filter domain.CiteFilter) ([]domain.CiteSummary, error)

	// GC removes reclaimable records that satisfy the policy.
	GC(ctx context.Context, policy domain.GCPolicy) (*domain.GCReport, error)
}
