package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// MetaChunkingParams records the chunking parameters chunk ids were built with.
const MetaChunkingParams = "chunking_params"

// IngestService turns local files into docs and chunks.
type IngestService struct {
	store            driven.Store
	normalisers      driven.NormaliserRegistry
	pipeline         driven.PostProcessorPipeline
	embeddingService driven.EmbeddingService
	clock            driven.Clock
	watcher          driven.FileWatcher
	include          []glob.Glob
	exclude          []glob.Glob
}

// NewIngestService creates a new ingest service.
// The embeddingService parameter is optional (can be nil).
func NewIngestService(
	store driven.Store,
	normalisers driven.NormaliserRegistry,
	pipeline driven.PostProcessorPipeline,
	embeddingService driven.EmbeddingService,
	clock driven.Clock,
) *IngestService {
	if clock == nil {
		clock = driven.SystemClock{}
	}
	return &IngestService{
		store:            store,
		normalisers:      normalisers,
		pipeline:         pipeline,
		embeddingService: embeddingService,
		clock:            clock,
	}
}

// SetWatcher sets the file watcher used by Watch.
func (s *IngestService) SetWatcher(w driven.FileWatcher) {
	s.watcher = w
}

// SetFilters compiles include and exclude globs for IngestDir and Watch.
// Patterns match slash-separated paths relative to the walked root.
func (s *IngestService) SetFilters(include, exclude []string) error {
	inc, err := compileGlobs(include)
	if err != nil {
		return err
	}
	exc, err := compileGlobs(exclude)
	if err != nil {
		return err
	}
	s.include, s.exclude = inc, exc
	return nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: glob %q: %w", domain.ErrInvalidInput, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// ==================== Ingest ====================

// Ingest stores one file. An unchanged file at the same path is skipped.
// Embeddings are computed before anything is written.
func (s *IngestService) Ingest(ctx context.Context, path string, opts driving.IngestOptions) (*domain.IngestResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	result := &domain.IngestResult{Path: abs}

	params, changed, err := s.checkParams(ctx, opts)
	if err != nil {
		return nil, err
	}

	resolver := textResolver{store: s.store, normalisers: s.normalisers}
	norm, err := resolver.readFile(ctx, abs)
	if err != nil {
		return nil, err
	}
	content := []byte(norm.Text)
	docID := domain.AddressDoc(content)
	result.DocID = docID

	previous, err := s.store.DocByPath(ctx, abs)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if previous != nil && previous.ID == docID && !changed {
		logger.Debug("Unchanged: %s (%s)", abs, docID)
		result.Skipped = true
		return result, nil
	}
	if previous != nil && previous.ID != docID {
		result.Retired = previous.ID
	}

	doc := domain.Doc{
		ID:         docID,
		Path:       abs,
		SHA256:     domain.HashContent(content),
		Source:     norm.Source,
		Text:       norm.Text,
		IngestedAt: s.clock.Now().UTC(),
	}
	chunks, err := s.pipeline.Process(ctx, &doc, norm.Text)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", abs, err)
	}
	if err := s.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}

	if err := s.store.Apply(ctx, docBatch(doc, chunks)); err != nil {
		return nil, fmt.Errorf("storing %s: %w", abs, err)
	}
	if changed {
		if err := s.saveParams(ctx, params); err != nil {
			return nil, err
		}
	}

	result.Chunks = len(chunks)
	logger.L().Debug().Str("path", abs).Str("doc", docID).Int("chunks", len(chunks)).Msg("ingested")
	return result, nil
}

// checkParams compares the pipeline's chunking parameters with the ones
// recorded in the store. It reports whether they need recording.
func (s *IngestService) checkParams(ctx context.Context, opts driving.IngestOptions) (domain.ChunkingParams, bool, error) {
	params := s.pipeline.ChunkingParams()
	raw, found, err := s.store.GetMeta(ctx, MetaChunkingParams)
	if err != nil {
		return params, false, err
	}
	if !found {
		return params, true, nil
	}

	var recorded domain.ChunkingParams
	if err := json.Unmarshal([]byte(raw), &recorded); err != nil {
		return params, false, fmt.Errorf("decoding recorded chunking params: %w", err)
	}
	if recorded == params {
		return params, false, nil
	}
	if !opts.Rechunk {
		return params, false, fmt.Errorf("%w: store uses %+v, pipeline uses %+v", domain.ErrChunkingChanged, recorded, params)
	}
	return params, true, nil
}

func (s *IngestService) saveParams(ctx context.Context, params domain.ChunkingParams) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding chunking params: %w", err)
	}
	return s.store.SetMeta(ctx, MetaChunkingParams, string(b))
}

func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	if s.embeddingService == nil || len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrEmbeddingUnavailable, len(vecs), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	return nil
}

// docBatch writes a doc, its chunks and their mentions. Chunks from an
// earlier chunking of the same doc leave the indexes.
func docBatch(doc domain.Doc, chunks []domain.Chunk) domain.Batch {
	batch := domain.Batch{
		Nodes:        []domain.Node{domain.DocNode(doc)},
		ReplaceEdges: []domain.EdgeKind{domain.EdgeHasChunk, domain.EdgeMentions},
		PruneChunks:  true,
	}
	entities := make(map[string]bool)
	for _, c := range chunks {
		batch.Nodes = append(batch.Nodes, domain.ChunkNode(c))
		batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeHasChunk, Src: doc.ID, Dst: c.ID})
		for _, e := range c.Mentions {
			if !entities[e.ID] {
				entities[e.ID] = true
				batch.Nodes = append(batch.Nodes, domain.EntityNode(e))
			}
			batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeMentions, Src: c.ID, Dst: e.ID})
		}
	}
	return batch
}

// ==================== Batches ====================

// IngestBatch ingests paths in order. Failures are recorded per document;
// cancellation stops before the next document and is returned with the
// partial report.
func (s *IngestService) IngestBatch(ctx context.Context, paths []string, opts driving.IngestOptions) (*domain.IngestReport, error) {
	report := &domain.IngestReport{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.Ingest(ctx, p, opts)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Warn("Ingest failed for %s: %v", p, err)
			report.Results = append(report.Results, domain.IngestResult{Path: p, Err: err})
			continue
		}
		report.Results = append(report.Results, *res)
	}
	logger.Info("Ingested %d documents (%d failed)", len(report.Results), len(report.Failed()))
	return report, nil
}

// IngestDir walks root in lexical order and ingests every supported file
// that passes the filters.
func (s *IngestService) IngestDir(ctx context.Context, root string, opts driving.IngestOptions) (*domain.IngestReport, error) {
	paths, err := s.collect(root)
	if err != nil {
		return nil, err
	}
	return s.IngestBatch(ctx, paths, opts)
}

func (s *IngestService) collect(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && matchesAny(s.exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.accepts(rel, path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}

// accepts applies the filters to a root-relative path and checks a
// normaliser handles the file.
func (s *IngestService) accepts(rel, path string) bool {
	if len(s.include) > 0 && !matchesAny(s.include, rel) {
		return false
	}
	if matchesAny(s.exclude, rel) {
		return false
	}
	return s.supported(path)
}

func (s *IngestService) supported(path string) bool {
	mime := s.normalisers.MIMETypeFor(path)
	for _, m := range s.normalisers.SupportedMIMETypes() {
		if m == mime {
			return true
		}
	}
	return false
}

// matchesAny tests rel both as given and rooted, so "**/x/**" also
// matches at the top level.
func matchesAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) || g.Match("/"+rel) {
			return true
		}
	}
	return false
}

// ==================== Mapping ====================

// ListDocs returns the stored docs ordered by path.
func (s *IngestService) ListDocs(ctx context.Context, includeRetired bool) ([]domain.DocSummary, error) {
	docs, err := s.store.ListDocs(ctx, includeRetired)
	if err != nil {
		return nil, fmt.Errorf("listing docs: %w", err)
	}
	out := make([]domain.DocSummary, len(docs))
	for i := range docs {
		out[i] = docs[i].Summary()
	}
	return out, nil
}

// Relocate points a doc id at a new path.
func (s *IngestService) Relocate(ctx context.Context, docID, path string) error {
	if !domain.IsDocID(docID) {
		return fmt.Errorf("%w: %q", domain.ErrMalformedID, docID)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	return s.store.Relocate(ctx, docID, abs)
}

// Relink hashes the file at path and records it as the location of the
// matching doc.
func (s *IngestService) Relink(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	resolver := textResolver{store: s.store, normalisers: s.normalisers}
	norm, err := resolver.readFile(ctx, abs)
	if err != nil {
		return "", err
	}
	docID := domain.AddressDoc([]byte(norm.Text))
	if _, err := s.store.GetNode(ctx, docID); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: no doc matches %s", domain.ErrNotFound, abs)
		}
		return "", err
	}
	if err := s.store.Relocate(ctx, docID, abs); err != nil {
		return "", err
	}
	logger.Info("Relinked %s to %s", docID, abs)
	return docID, nil
}

// ==================== Watch ====================

// Watch ingests supported files under roots whenever they are written.
func (s *IngestService) Watch(ctx context.Context, roots []string, opts driving.IngestOptions, report func(domain.IngestResult)) error {
	if s.watcher == nil {
		return fmt.Errorf("%w: no file watcher configured", domain.ErrInvalidInput)
	}
	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", r, err)
		}
		absRoots = append(absRoots, abs)
	}

	events, err := s.watcher.Watch(ctx, absRoots)
	if err != nil {
		return err
	}
	for ev := range events {
		if !s.acceptsEvent(absRoots, ev.Path) {
			continue
		}
		res, err := s.Ingest(ctx, ev.Path, opts)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			res = &domain.IngestResult{Path: ev.Path, Err: err}
		}
		if report != nil {
			report(*res)
		}
	}
	return ctx.Err()
}

func (s *IngestService) acceptsEvent(roots []string, path string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if matchesAny(s.exclude, rel) || s.excludedDir(rel) {
			return false
		}
		return s.accepts(rel, path)
	}
	return false
}

// excludedDir reports whether any parent directory of rel is excluded.
func (s *IngestService) excludedDir(rel string) bool {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(rel)))
	for dir != "." && dir != "/" && dir != "" {
		if matchesAny(s.exclude, dir+"/") {
			return true
		}
		dir = filepath.ToSlash(filepath.Dir(filepath.FromSlash(dir)))
	}
	return false
}
