package driven

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// Normaliser transforms raw file bytes into normalised text.
// Each normaliser handles specific MIME types (e.g., Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise produces the text that is addressed and chunked.
	// Output must be a pure function of the input bytes.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormalisedDocument, error)
}

// NormaliserRegistry selects the appropriate normaliser for a document.
// It maintains a priority-ordered list of normalisers and dispatches
// based on MIME type.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the best matching normaliser.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormalisedDocument, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string

	// MIMETypeFor guesses the MIME type of a path from its extension.
	MIMETypeFor(path string) string
}
