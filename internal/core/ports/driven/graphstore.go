package driven

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// GraphStore holds typed nodes and edges plus two derived indexes over
// text-bearing nodes: a cosine vector index and a full-text index.
//
// Every mutating call is atomic. Writers share a single store-wide lock and
// return domain.ErrStoreBusy when it cannot be acquired within the
// configured wait. Readers run against a consistent snapshot.
type GraphStore interface {
	// UpsertNode inserts or updates a node. Upserting a Doc whose id already
	// exists with a different full hash fails with domain.ErrHashCollision.
	UpsertNode(ctx context.Context, node domain.Node) error

	// UpsertEdge inserts an edge. Both endpoints must exist, else
	// domain.ErrReferentialIntegrity.
	UpsertEdge(ctx context.Context, edge domain.Edge) error

	// Apply writes a batch of nodes and edges in one transaction.
	Apply(ctx context.Context, batch domain.Batch) error

	// GetNode returns the node with the given id or domain.ErrNotFound.
	GetNode(ctx context.Context, id string) (domain.Node, error)

	// DeleteNode removes a MemoryNote and its edges.
	DeleteNode(ctx context.Context, id string) error

	// Neighbors returns ids reachable from id over one edge kind.
	Neighbors(ctx context.Context, id string, kind domain.EdgeKind, dir domain.Direction) ([]string, error)

	// QueryVector returns the k nearest live nodes of the given kinds by cosine similarity.
	QueryVector(ctx context.Context, vec []float32, k int, kinds []domain.NodeKind) ([]domain.Candidate, error)

	// QueryFullText returns the k best live nodes of the given kinds by BM25.
	QueryFullText(ctx context.Context, query string, k int, kinds []domain.NodeKind) ([]domain.Candidate, error)

	// Traverse evaluates a path pattern.
	Traverse(ctx context.Context, pattern domain.Pattern) ([]domain.Path, error)

	// RebuildIndexes rebuilds both indexes from node content into shadow
	// structures and swaps them in. An interrupted rebuild resumes from its
	// last checkpoint and leaves the previous index usable.
	RebuildIndexes(ctx context.Context) error

	// ListMemories returns memory notes, newest first.
	ListMemories(ctx context.Context, limit int) ([]domain.MemoryNote, error)

	// Stats counts nodes, edges and citations.
	Stats(ctx context.Context) (domain.GraphStats, error)
}

// DocStore resolves documents through the docId to path mapping table.
type DocStore interface {
	// DocPath returns the current path for a doc id.
	DocPath(ctx context.Context, docID string) (string, error)

	// DocByPath returns the live doc currently mapped to path.
	DocByPath(ctx context.Context, path string) (*domain.Doc, error)

	// Relocate points a doc id at a new path.
	Relocate(ctx context.Context, docID, path string) error

	// ListDocs returns all docs, including retired ones when requested.
	ListDocs(ctx context.Context, includeRetired bool) ([]domain.Doc, error)

	// DocChunks returns the chunks of a doc ordered by span start.
	DocChunks(ctx context.Context, docID string) ([]domain.Chunk, error)
}

// CitationStore persists immutable citation records.
type CitationStore interface {
	// SaveCitation inserts a record. Records are never updated.
	SaveCitation(ctx context.Context, cite domain.Cite) error

	// GetCitation returns a record or domain.ErrCiteNotFound.
	GetCitation(ctx context.Context, citeID string) (*domain.Cite, error)

	// ListCitations returns all records ordered by creation time.
	ListCitations(ctx context.Context) ([]domain.Cite, error)

	// CitationUsage counts DerivedFrom edges carrying the citation id.
	CitationUsage(ctx context.Context, citeID string) (int, error)

	// DeleteCitations removes records by id.
	DeleteCitations(ctx context.Context, citeIDs []string) error
}

// MetaStore holds store-level key/value metadata.
type MetaStore interface {
	// GetMeta returns a value and whether it was set.
	GetMeta(ctx context.Context, key string) (string, bool, error)

	// SetMeta sets a value.
	SetMeta(ctx context.Context, key, value string) error
}

// Store is the full set of persistence ports served by one embedded database.
type Store interface {
	GraphStore
	DocStore
	CitationStore
	MetaStore

	// Close releases the database handle.
	Close() error
}
