package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/postprocessors/chunker"
)

// textResolver recovers the normalised text of docs, either from the
// stored chunks or from the file currently mapped to the doc.
type textResolver struct {
	store       driven.Store
	normalisers driven.NormaliserRegistry
}

// readFile normalises the file at path.
func (r *textResolver) readFile(ctx context.Context, path string) (*domain.NormalisedDocument, error) {
	if r.normalisers == nil {
		return nil, fmt.Errorf("%w: no normalisers configured", domain.ErrUnsupportedType)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return r.normalisers.Normalise(ctx, &domain.RawDocument{
		Path:     path,
		MIMEType: r.normalisers.MIMETypeFor(path),
		Content:  content,
	})
}

// docText returns the normalised text of doc. The stored text is preferred;
// docs stored without it fall back to stitching char-located chunks, then to
// the mapped file, which is accepted only if it still hashes to the doc id.
func (r *textResolver) docText(ctx context.Context, doc *domain.Doc) (string, error) {
	if doc.Text != "" && domain.AddressDoc([]byte(doc.Text)) == doc.ID {
		return doc.Text, nil
	}
	chunks, err := r.store.DocChunks(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if text, ok := stitch(chunks); ok && domain.AddressDoc([]byte(text)) == doc.ID {
		return text, nil
	}

	if doc.Path == "" {
		return "", fmt.Errorf("%w: text of doc %s is not stored", domain.ErrNotFound, doc.ID)
	}
	norm, err := r.readFile(ctx, doc.Path)
	if err != nil {
		return "", err
	}
	if domain.AddressDoc([]byte(norm.Text)) != doc.ID {
		return "", fmt.Errorf("%w: %s no longer matches doc %s", domain.ErrDrift, doc.Path, doc.ID)
	}
	return norm.Text, nil
}

// stitch rebuilds text from char-located chunks. It fails when any chunk
// uses another locator or the chunks leave a gap.
func stitch(chunks []domain.Chunk) (string, bool) {
	if len(chunks) == 0 {
		return "", false
	}
	var out []rune
	for _, c := range chunks {
		if c.Span.Kind != domain.LocatorChar || c.Span.Start > len(out) {
			return "", false
		}
		runes := []rune(c.Text)
		if len(runes) != c.Span.Len() {
			return "", false
		}
		if c.Span.End > len(out) {
			out = append(out, runes[len(out)-c.Span.Start:]...)
		}
	}
	return string(out), true
}

// quoteWithContext extracts the span of text and its surrounding context.
func quoteWithContext(text string, span domain.Span) (string, domain.CiteContext, error) {
	quote, err := chunker.Extract(text, span)
	if err != nil {
		return "", domain.CiteContext{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	ctx, err := chunker.Surrounding(text, span, domain.ContextWindow)
	if err != nil {
		return "", domain.CiteContext{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return quote, ctx, nil
}

// narrow applies a locator to text. A nil locator covers all of text and a
// negative bound is open on that side.
func narrow(text string, locator *domain.Span) domain.Span {
	if locator == nil {
		return fullSpan(text)
	}
	span := *locator
	if span.Kind == "" {
		span.Kind = domain.LocatorChar
	}
	if span.Start < 0 {
		span.Start = 0
	}
	if span.End < 0 {
		runes := []rune(text)
		if span.Kind == domain.LocatorChar {
			span.End = len(runes)
		} else {
			span.End = len(chunker.Tokenize(runes))
		}
	}
	return span
}

// fullSpan covers all of text in rune offsets.
func fullSpan(text string) domain.Span {
	return domain.Span{Kind: domain.LocatorChar, Start: 0, End: len([]rune(text))}
}

// isNotFound matches the store's missing-node error.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
