package domain

// SearchOptions configures a hybrid search.
type SearchOptions struct {
	// Surfaces restricts the search. Empty means both.
	Surfaces []Surface

	// K is the maximum number of results.
	K int

	// PerDocCap limits results contributed by a single Doc.
	PerDocCap int

	// VectorWeight and TextWeight scale the normalised scores of each
	// modality before they are summed.
	VectorWeight float64
	TextWeight   float64
}

// DefaultSearchOptions returns equal weighting, k=10 and one result per doc.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Surfaces:     []Surface{SurfaceMemory, SurfaceGrounding},
		K:            10,
		PerDocCap:    1,
		VectorWeight: 0.5,
		TextWeight:   0.5,
	}
}

// KindsFor maps surfaces to the text-bearing node kinds they cover.
func KindsFor(surfaces []Surface) []NodeKind {
	if len(surfaces) == 0 {
		return []NodeKind{NodeMemory, NodeChunk}
	}
	var kinds []NodeKind
	for _, s := range surfaces {
		switch s {
		case SurfaceMemory:
			kinds = append(kinds, NodeMemory)
		case SurfaceGrounding:
			kinds = append(kinds, NodeChunk)
		}
	}
	return kinds
}

// SurfaceOf returns the surface a text-bearing node kind belongs to.
func SurfaceOf(k NodeKind) Surface {
	if k == NodeMemory {
		return SurfaceMemory
	}
	return SurfaceGrounding
}

// ChunkingParams identifies how chunk ids were derived. Changing any field
// changes chunk identity.
type ChunkingParams struct {
	WindowSize int         `json:"window_size"`
	Stride     int         `json:"stride"`
	Locator    LocatorKind `json:"locator"`
	Tokenizer  string      `json:"tokenizer"`
}

// IngestResult reports the outcome for one document.
type IngestResult struct {
	Path    string `json:"path"`
	DocID   string `json:"doc_id,omitempty"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped,omitempty"`
	Retired string `json:"retired,omitempty"`
	Err     error  `json:"-"`
}

// IngestReport aggregates a batch. Failures are isolated per document.
type IngestReport struct {
	Results []IngestResult
}

// Failed returns the results that carry an error.
func (r IngestReport) Failed() []IngestResult {
	var out []IngestResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}
