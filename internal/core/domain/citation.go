package domain

import "time"

// CiteSchemaVersion is written into every persisted citation record.
const CiteSchemaVersion = 1

// ContextWindow is the number of runes captured on each side of a quote.
const ContextWindow = 100

// CiteType names what a citation targets.
type CiteType string

// Available citation target types.
const (
	CiteDoc    CiteType = "doc"
	CiteChunk  CiteType = "chunk"
	CiteMemory CiteType = "memory"
)

// CiteTypeOf maps a node kind to a citation type.
func CiteTypeOf(k NodeKind) (CiteType, bool) {
	switch k {
	case NodeDoc:
		return CiteDoc, true
	case NodeChunk:
		return CiteChunk, true
	case NodeMemory:
		return CiteMemory, true
	default:
		return "", false
	}
}

// RetentionClass governs whether a citation is eligible for garbage collection.
type RetentionClass string

// Available retention classes.
const (
	// RetentionEphemeral citations are reclaimable after an hour.
	RetentionEphemeral RetentionClass = "ephemeral"

	// RetentionStandard citations are reclaimable after seven days.
	RetentionStandard RetentionClass = "standard"

	// RetentionDurable citations are never collected implicitly.
	RetentionDurable RetentionClass = "durable"

	// RetentionPinned citations are never collected implicitly.
	RetentionPinned RetentionClass = "pinned"
)

// IsValid returns true if the retention class is recognised.
func (r RetentionClass) IsValid() bool {
	switch r {
	case RetentionEphemeral, RetentionStandard, RetentionDurable, RetentionPinned:
		return true
	default:
		return false
	}
}

// Reclaimable reports whether gc may ever remove citations of this class.
func (r RetentionClass) Reclaimable() bool {
	return r == RetentionEphemeral || r == RetentionStandard
}

// TTL returns the default age after which a reclaimable citation may be
// collected. Zero means never.
func (r RetentionClass) TTL() time.Duration {
	switch r {
	case RetentionEphemeral:
		return time.Hour
	case RetentionStandard:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// CiteLoc locates the quote within its target.
type CiteLoc struct {
	Kind  LocatorKind `json:"kind"`
	Start int         `json:"start"`
	End   int         `json:"end"`
}

// CiteContext holds text surrounding the quote.
type CiteContext struct {
	Pre  string `json:"pre"`
	Post string `json:"post"`
}

// CiteSource is optional origin metadata.
type CiteSource struct {
	URL  string `json:"url,omitempty"`
	Page int    `json:"page,omitempty"`
}

// Surface is a retrieval surface.
type Surface string

// Available surfaces.
const (
	SurfaceMemory    Surface = "memory"
	SurfaceGrounding Surface = "grounding"
)

// Cite anchors a quoted span to a node and a file path. Persisted cites have
// a CiteID and are immutable; transient cites come from search and carry a
// Score and Surface instead.
type Cite struct {
	CiteID         string         `json:"cite_id,omitempty"`
	SchemaVersion  int            `json:"schema_version,omitempty"`
	Type           CiteType       `json:"type"`
	ID             string         `json:"id"`
	Path           string         `json:"path"`
	SHA256         string         `json:"sha256"`
	Loc            CiteLoc        `json:"loc"`
	Quote          string         `json:"quote"`
	Context        CiteContext    `json:"context"`
	Source         *CiteSource    `json:"source,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	RetentionClass RetentionClass `json:"retention_class"`
	Tags           []string       `json:"tags,omitempty"`

	Score   float64 `json:"score,omitempty"`
	Surface Surface `json:"surface,omitempty"`
}

// DocID returns the doc a doc or chunk citation ultimately refers to.
func (c Cite) DocID() string {
	switch c.Type {
	case CiteDoc:
		return c.ID
	case CiteChunk:
		if docID, _, err := ParseChunkID(c.ID); err == nil {
			return docID
		}
	}
	return ""
}

// Diagnostic codes reported by verification.
const (
	DiagTargetMissing   = "target_missing"
	DiagContentMismatch = "content_mismatch"
	DiagQuoteMismatch   = "quote_mismatch"
	DiagPathMoved       = "path_moved"
	DiagFileMissing     = "file_missing"
)

// Diagnostic describes one difference found by verification.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verification is the informational result of comparing a citation with
// the current state of its source.
type Verification struct {
	CiteID      string       `json:"cite_id"`
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Has reports whether a diagnostic with the given code was recorded.
func (v Verification) Has(code string) bool {
	for _, d := range v.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Fail records a diagnostic that invalidates the citation.
func (v *Verification) Fail(code, msg string) {
	v.Valid = false
	v.Note(code, msg)
}

// Note records an informational diagnostic.
func (v *Verification) Note(code, msg string) {
	v.Diagnostics = append(v.Diagnostics, Diagnostic{Code: code, Message: msg})
}

// OpenedCite is display-ready citation data.
type OpenedCite struct {
	CiteID  string      `json:"cite_id"`
	Path    string      `json:"path"`
	Quote   string      `json:"quote"`
	Context CiteContext `json:"context"`
}

// CiteStatus is the verification status used for filtering.
type CiteStatus string

// Available statuses.
const (
	CiteStatusValid   CiteStatus = "valid"
	CiteStatusDrifted CiteStatus = "drifted"
)

// CiteFilter narrows citation listings. Empty fields match everything.
type CiteFilter struct {
	Tags             []string
	Types            []CiteType
	RetentionClasses []RetentionClass
	Status           CiteStatus

	// WithStatus computes the status of every listed citation.
	WithStatus bool
}

// CiteSummary is one row of a citation listing.
type CiteSummary struct {
	CiteID         string         `json:"cite_id"`
	Type           CiteType       `json:"type"`
	ID             string         `json:"id"`
	Path           string         `json:"path"`
	Quote          string         `json:"quote"`
	RetentionClass RetentionClass `json:"retention_class"`
	Tags           []string       `json:"tags,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         CiteStatus     `json:"status,omitempty"`
}

// GCPolicy selects reclaimable citations for removal.
type GCPolicy struct {
	// MaxAge overrides the per-class TTL when non-zero.
	MaxAge time.Duration

	// MaxUsage keeps citations referenced by more than this many
	// DerivedFrom edges. Zero keeps any referenced citation.
	MaxUsage int

	// DryRun reports what would be removed without removing it.
	DryRun bool
}

// GCReport lists what a gc pass did.
type GCReport struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
	DryRun  bool     `json:"dry_run"`
}
