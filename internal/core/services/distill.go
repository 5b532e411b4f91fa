package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
)

// Ensure DistillService implements the interface.
var _ driving.DistillService = (*DistillService)(nil)

// DistillService folds cited material into provenance-linked memory notes.
// It is the only writer of DerivedFrom edges.
type DistillService struct {
	store   driven.Store
	memory  *MemoryService
	prompts driven.PromptStore
}

// NewDistillService creates a new distillation service.
// The prompts parameter is optional (can be nil).
func NewDistillService(store driven.Store, memory *MemoryService, prompts driven.PromptStore) *DistillService {
	return &DistillService{
		store:   store,
		memory:  memory,
		prompts: prompts,
	}
}

// Distill resolves every source citation, embeds the content and then
// writes the note, its DerivedFrom, HasTopic and Mentions edges in one
// batch. Any unresolvable citation aborts before anything is written.
func (s *DistillService) Distill(ctx context.Context, req driving.DistillRequest) (*domain.MemoryNote, error) {
	logger.Section("Distill")

	sources, err := s.resolveSources(ctx, req.SourceCiteIDs)
	if err != nil {
		return nil, err
	}

	note, err := s.memory.newNote(ctx, req.Content, req.Tags)
	if err != nil {
		return nil, err
	}

	var entities []domain.Entity
	for _, e := range append(append([]domain.Entity{}, req.Entities...), s.memory.mentions.Extract(note.Text)...) {
		if domain.Slug(e.Name) == "" {
			continue
		}
		if e.ID == "" {
			e = domain.NewEntity(e.Name, e.Type)
		}
		entities = append(entities, e)
	}

	batch := noteBatch(*note, req.Topics, entities)
	for _, src := range sources {
		batch.Edges = append(batch.Edges, domain.Edge{
			Kind:   domain.EdgeDerivedFrom,
			Src:    note.ID,
			Dst:    src.ID,
			CiteID: src.CiteID,
		})
	}

	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("storing distilled memory: %w", err)
	}
	note.Topics = topicNames(req.Topics)

	logger.Info("Distilled %s from %d citations", note.ID, len(sources))
	return note, nil
}

// resolveSources loads each citation and checks its doc or chunk target is
// still live. Duplicates are dropped.
func (s *DistillService) resolveSources(ctx context.Context, citeIDs []string) ([]domain.Cite, error) {
	seen := make(map[string]bool)
	var out []domain.Cite //nolint:prealloc // duplicates are skipped
	for _, id := range citeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		cite, err := s.store.GetCitation(ctx, id)
		if errors.Is(err, domain.ErrCiteNotFound) {
			return nil, fmt.Errorf("%w: %s does not exist", domain.ErrInvalidSourceCitation, id)
		}
		if err != nil {
			return nil, err
		}
		if cite.Type != domain.CiteDoc && cite.Type != domain.CiteChunk {
			return nil, fmt.Errorf("%w: %s targets a %s, not a doc or chunk", domain.ErrInvalidSourceCitation, id, cite.Type)
		}
		if err := s.checkTarget(ctx, cite); err != nil {
			return nil, err
		}
		out = append(out, *cite)
	}
	return out, nil
}

func (s *DistillService) checkTarget(ctx context.Context, cite *domain.Cite) error {
	if _, err := s.store.GetNode(ctx, cite.ID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s target %s no longer exists", domain.ErrInvalidSourceCitation, cite.CiteID, cite.ID)
		}
		return err
	}
	doc, err := s.store.GetNode(ctx, cite.DocID())
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s doc %s no longer exists", domain.ErrInvalidSourceCitation, cite.CiteID, cite.DocID())
		}
		return err
	}
	if doc.Doc.Retired {
		return fmt.Errorf("%w: %s doc %s was replaced", domain.ErrInvalidSourceCitation, cite.CiteID, doc.Doc.ID)
	}
	return nil
}

// Prompt returns a named distillation prompt template.
func (s *DistillService) Prompt(name string) (string, error) {
	if s.prompts == nil {
		return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
	}
	return s.prompts.Load(name)
}

// Prompts lists the available prompt names.
func (s *DistillService) Prompts() []string {
	if s.prompts == nil {
		return nil
	}
	return s.prompts.Names()
}
