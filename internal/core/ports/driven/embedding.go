package driven

import "context"

// EmbeddingService maps text to a vector. It is optional: without one,
// ingest stores no vectors and retrieval runs on the full-text index alone.
//
// Vectors are compared by cosine similarity, so every vector written to
// one store must come from the same model and have the same length.
type EmbeddingService interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length.
	Dimensions() int

	// ModelName identifies the model.
	ModelName() string

	// Ping checks that the provider can serve requests.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
