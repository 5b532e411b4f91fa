package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// SearchService provides hybrid retrieval to external actors.
type SearchService interface {
	// Search returns transient citations ranked by fused score.
	// Given an unchanged store and query the order is stable.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Cite, error)
}
