package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
	"github.com/custodia-labs/openkl/internal/postprocessors/chunker"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// oversample is how many candidates each index returns per requested result.
const oversample = 5

// minCandidates is the smallest candidate pool requested from each index.
const minCandidates = 50

// SearchService provides hybrid retrieval over memory notes and chunks.
type SearchService struct {
	store            driven.Store
	embeddingService driven.EmbeddingService
	resolver         *textResolver
}

// NewSearchService creates a new search service.
// The embeddingService parameter is optional (can be nil); without it only
// the full-text index is queried.
func NewSearchService(
	store driven.Store,
	embeddingService driven.EmbeddingService,
	normalisers driven.NormaliserRegistry,
) *SearchService {
	return &SearchService{
		store:            store,
		embeddingService: embeddingService,
		resolver:         &textResolver{store: store, normalisers: normalisers},
	}
}

// Search embeds the query, queries both indexes, fuses the scores, caps
// results per doc, interleaves shared topics and materialises transient
// citations.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Cite, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.Cite{}, nil
	}

	if opts.VectorWeight < 0 || opts.TextWeight < 0 {
		return nil, fmt.Errorf("%w: negative search weight", domain.ErrInvalidInput)
	}
	opts = withSearchDefaults(opts)
	kinds, err := surfaceKinds(opts.Surfaces)
	if err != nil {
		return nil, err
	}
	pool := opts.K * oversample
	if pool < minCandidates {
		pool = minCandidates
	}
	logger.Debug("K: %d, per-doc cap: %d, pool: %d, kinds: %v", opts.K, opts.PerDocCap, pool, kinds)

	vector, err := s.vectorCandidates(ctx, query, pool, kinds)
	if err != nil {
		return nil, err
	}
	text, err := s.store.QueryFullText(ctx, query, pool, kinds)
	if err != nil {
		return nil, fmt.Errorf("full-text query: %w", err)
	}
	logger.Debug("Raw results: %d vector, %d text", len(vector), len(text))

	hits := fuse(vector, text, opts.VectorWeight, opts.TextWeight)
	hits = capPerDoc(hits, opts.PerDocCap)
	logger.Debug("After per-doc cap: %d", len(hits))

	groups, err := s.diversityGroups(ctx, hits)
	if err != nil {
		return nil, err
	}
	hits = interleave(hits, groups)
	if len(hits) > opts.K {
		hits = hits[:opts.K]
	}

	results := make([]domain.Cite, 0, len(hits))
	for _, h := range hits {
		cite, err := s.materialise(ctx, h)
		if err != nil {
			if isNotFound(err) {
				logger.Debug("Skipping %s: %v", h.id, err)
				continue
			}
			return nil, err
		}
		results = append(results, *cite)
	}

	logger.Info("Final results: %d", len(results))
	return results, nil
}

// vectorCandidates returns nil when no embedder is configured or the query
// cannot be embedded, so search degrades to full text only.
func (s *SearchService) vectorCandidates(ctx context.Context, query string, k int, kinds []domain.NodeKind) ([]domain.Candidate, error) {
	if s.embeddingService == nil {
		logger.Debug("Vector search unavailable: no embedding service")
		return nil, nil
	}
	vec, err := s.embeddingService.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Query embedding failed, using full-text only: %v", err)
		return nil, nil
	}
	cands, err := s.store.QueryVector(ctx, vec, k, kinds)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return cands, nil
}

// diversityGroups keys each hit by its first topic (memory notes) or first
// mentioned entity (chunks).
func (s *SearchService) diversityGroups(ctx context.Context, hits []fusedHit) (map[string]string, error) {
	groups := make(map[string]string, len(hits))
	for _, h := range hits {
		edge := domain.EdgeMentions
		if h.kind == domain.NodeMemory {
			edge = domain.EdgeHasTopic
		}
		ids, err := s.store.Neighbors(ctx, h.id, edge, domain.Outgoing)
		if err != nil {
			return nil, fmt.Errorf("loading groups for %s: %w", h.id, err)
		}
		if len(ids) > 0 {
			groups[h.id] = ids[0]
		}
	}
	return groups, nil
}

// materialise builds a transient citation for a hit as of now.
func (s *SearchService) materialise(ctx context.Context, h fusedHit) (*domain.Cite, error) {
	node, err := s.store.GetNode(ctx, h.id)
	if err != nil {
		return nil, err
	}

	switch node.Kind {
	case domain.NodeMemory:
		m := node.Memory
		span := fullSpan(m.Text)
		return &domain.Cite{
			Type:    domain.CiteMemory,
			ID:      m.ID,
			SHA256:  domain.HashContent([]byte(m.Text)),
			Loc:     domain.CiteLoc{Kind: span.Kind, Start: span.Start, End: span.End},
			Quote:   m.Text,
			Score:   h.score,
			Surface: domain.SurfaceMemory,
		}, nil

	case domain.NodeChunk:
		c := node.Chunk
		docNode, err := s.store.GetNode(ctx, c.DocID)
		if err != nil {
			return nil, err
		}
		doc := docNode.Doc
		cite := &domain.Cite{
			Type:    domain.CiteChunk,
			ID:      c.ID,
			Path:    doc.Path,
			SHA256:  doc.SHA256,
			Loc:     domain.CiteLoc{Kind: c.Span.Kind, Start: c.Span.Start, End: c.Span.End},
			Quote:   c.Text,
			Source:  doc.Source,
			Score:   h.score,
			Surface: domain.SurfaceGrounding,
		}
		if text, err := s.resolver.docText(ctx, doc); err == nil {
			if surrounding, err := chunker.Surrounding(text, c.Span, domain.ContextWindow); err == nil {
				cite.Context = surrounding
			}
		}
		return cite, nil

	default:
		return nil, fmt.Errorf("%w: %s is not searchable", domain.ErrUnsupportedType, node.Kind)
	}
}

// withSearchDefaults fills unset options from the defaults.
func withSearchDefaults(opts domain.SearchOptions) domain.SearchOptions {
	d := domain.DefaultSearchOptions()
	if len(opts.Surfaces) == 0 {
		opts.Surfaces = d.Surfaces
	}
	if opts.K <= 0 {
		opts.K = d.K
	}
	if opts.PerDocCap <= 0 {
		opts.PerDocCap = d.PerDocCap
	}
	if opts.VectorWeight == 0 && opts.TextWeight == 0 {
		opts.VectorWeight = d.VectorWeight
		opts.TextWeight = d.TextWeight
	}
	return opts
}

// surfaceKinds maps surfaces to the node kinds they search.
func surfaceKinds(surfaces []domain.Surface) ([]domain.NodeKind, error) {
	kinds := make([]domain.NodeKind, 0, len(surfaces))
	seen := make(map[domain.NodeKind]bool)
	for _, sf := range surfaces {
		var k domain.NodeKind
		switch sf {
		case domain.SurfaceMemory:
			k = domain.NodeMemory
		case domain.SurfaceGrounding:
			k = domain.NodeChunk
		default:
			return nil, fmt.Errorf("%w: surface %q", domain.ErrInvalidInput, sf)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
