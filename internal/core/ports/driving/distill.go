package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// DistillRequest describes a memory note derived from cited material.
type DistillRequest struct {
	Content       string
	SourceCiteIDs []string
	Tags          []string
	Topics        []string
	Entities      []domain.Entity
}

// DistillService creates provenance-linked memory notes.
type DistillService interface {
	// Distill writes the note and all its edges atomically, or nothing.
	Distill(ctx context.Context, req DistillRequest) (*domain.MemoryNote, error)

	// Prompt returns a named distillation prompt template.
	Prompt(name string) (string, error)

	// Prompts lists the available prompt names.
	Prompts() []string
}
