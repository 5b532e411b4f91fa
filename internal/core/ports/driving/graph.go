package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// GraphService exposes graph queries and maintenance.
type GraphService interface {
	// Query parses a pattern such as
	// "MemoryNote -HasTopic-> Topic <-HasTopic- MemoryNote" and evaluates it.
	Query(ctx context.Context, pattern string, limit int) ([]domain.Path, error)

	// Node returns one node.
	Node(ctx context.Context, id string) (domain.Node, error)

	// Stats counts nodes, edges and citations.
	Stats(ctx context.Context) (domain.GraphStats, error)

	// RebuildIndexes rebuilds derived indexes.
	RebuildIndexes(ctx context.Context) error
}
