package domain

import "time"

// LocatorKind names the unit a Span's offsets are expressed in.
type LocatorKind string

// Available locator kinds.
const (
	// LocatorChar counts Unicode scalar values (runes).
	LocatorChar LocatorKind = "char"

	// LocatorTok counts tokens produced by the versioned tokenizer.
	LocatorTok LocatorKind = "tok"
)

// IsValid returns true if the locator kind is recognised.
func (k LocatorKind) IsValid() bool {
	return k == LocatorChar || k == LocatorTok
}

// String returns the string representation.
func (k LocatorKind) String() string {
	return string(k)
}

// Span is a half-open [Start, End) range in the declared locator kind.
type Span struct {
	Kind  LocatorKind
	Start int
	End   int
}

// Len returns the number of units covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Valid reports whether the span is well formed.
func (s Span) Valid() bool {
	return s.Kind.IsValid() && s.Start >= 0 && s.End > s.Start
}

// Doc is a normalised text artifact addressed by its content.
// The ID never changes while the content is unchanged, regardless of Path.
type Doc struct {
	// ID is AddressDoc of the normalised bytes.
	ID string

	// Path is the current file location, resolved through the mapping table.
	Path string

	// SHA256 is the full digest of the normalised bytes.
	SHA256 string

	// Source is the optional origin (URL, page) declared by the normaliser.
	Source *CiteSource

	// Text is the normalised content. Docs written before it was stored
	// leave it empty.
	Text string

	// IngestedAt is when the doc was first stored.
	IngestedAt time.Time

	// Retired is set when a later ingestion replaced this content at its path.
	// Retired docs keep their nodes for provenance but leave the indexes.
	Retired bool
}

// DocSummary is the listing view of a Doc, without its text.
type DocSummary struct {
	ID         string      `json:"id"`
	Path       string      `json:"path,omitempty"`
	SHA256     string      `json:"sha256"`
	Source     *CiteSource `json:"source,omitempty"`
	IngestedAt time.Time   `json:"ingested_at"`
	Retired    bool        `json:"retired,omitempty"`
}

// Summary returns the listing view of d.
func (d *Doc) Summary() DocSummary {
	return DocSummary{
		ID:         d.ID,
		Path:       d.Path,
		SHA256:     d.SHA256,
		Source:     d.Source,
		IngestedAt: d.IngestedAt,
		Retired:    d.Retired,
	}
}

// Chunk is a contiguous span of a Doc's text.
type Chunk struct {
	// ID is FormatChunkID(DocID, Span).
	ID string

	// DocID weakly references the owning Doc.
	DocID string

	// Text is the materialised span.
	Text string

	// Span holds the offsets in the declared locator kind.
	Span Span

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Mentions lists entities referenced by the chunk text.
	// Populated by post-processors and stored as Mentions edges.
	Mentions []Entity
}

// NormalisedDocument is the output of a normaliser.
type NormalisedDocument struct {
	// Path is where the raw bytes were read from.
	Path string

	// Text is the normalised content that gets addressed and chunked.
	Text string

	// Source is optional origin metadata (e.g. markdown frontmatter).
	Source *CiteSource
}
