package driven

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// PostProcessor turns a normalised document into chunks.
// PostProcessors are chained in a pipeline (e.g., chunking, mention extraction).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a document and its normalised text and returns chunks.
	// If the processor annotates chunks (e.g., mentions), it receives and returns chunks.
	// If the processor creates chunks (e.g., chunker), it receives nil and returns new chunks.
	Process(ctx context.Context, doc *domain.Doc, text string, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the document through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, doc *domain.Doc, text string) ([]domain.Chunk, error)

	// ChunkingParams reports the parameters that determine chunk identity.
	ChunkingParams() domain.ChunkingParams
}
