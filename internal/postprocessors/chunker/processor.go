// Package chunker provides the overlapping-window chunking processor.
package chunker

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// DefaultWindowSize is the default number of units per chunk.
const DefaultWindowSize = 512

// DefaultStride is the default number of units shared by consecutive chunks.
const DefaultStride = 128

// Processor splits document text into overlapping windows.
// It implements the PostProcessor interface.
type Processor struct {
	windowSize int
	stride     int
	locator    domain.LocatorKind
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithWindowSize sets the window size in locator units.
func WithWindowSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.windowSize = size
		}
	}
}

// WithStride sets the number of units consecutive windows share.
func WithStride(stride int) Option {
	return func(p *Processor) {
		if stride >= 0 {
			p.stride = stride
		}
	}
}

// WithLocator sets the locator kind spans are expressed in.
func WithLocator(kind domain.LocatorKind) Option {
	return func(p *Processor) {
		if kind.IsValid() {
			p.locator = kind
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		windowSize: DefaultWindowSize,
		stride:     DefaultStride,
		locator:    domain.LocatorChar,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Windows must advance
	if p.stride >= p.windowSize {
		p.stride = p.windowSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkingParams returns the parameters that determine chunk ids.
func (p *Processor) ChunkingParams() domain.ChunkingParams {
	params := domain.ChunkingParams{
		WindowSize: p.windowSize,
		Stride:     p.stride,
		Locator:    p.locator,
	}
	if p.locator == domain.LocatorTok {
		params.Tokenizer = TokenizerVersion
	}
	return params
}

// Process splits the document text into chunks addressed by doc id and span.
// Input chunks are ignored; this processor creates new chunks from the text.
func (p *Processor) Process(_ context.Context, doc *domain.Doc, text string, _ []domain.Chunk) ([]domain.Chunk, error) {
	windows, err := Chunk(text, p.windowSize, p.stride, p.locator)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, domain.Chunk{
			ID:    domain.FormatChunkID(doc.ID, w.Span),
			DocID: doc.ID,
			Text:  w.Text,
			Span:  w.Span,
		})
	}
	return chunks, nil
}
