package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
	"github.com/custodia-labs/openkl/internal/postprocessors/chunker"
)

// Ensure CitationService implements the interface.
var _ driving.CitationService = (*CitationService)(nil)

// CiteIDPrefix starts every persisted citation id.
const CiteIDPrefix = "c-"

// citeIDLength is the nanoid length after the prefix.
const citeIDLength = 12

// msgTargetMissing is reported when the content a citation was made against
// is no longer addressed by the recorded doc id.
const msgTargetMissing = "source document no longer exists under previous id"

// CitationService creates, checks and collects persisted citations.
type CitationService struct {
	store    driven.Store
	resolver *textResolver
	clock    driven.Clock
	newID    func() (string, error)
}

// NewCitationService creates a new citation service.
func NewCitationService(store driven.Store, normalisers driven.NormaliserRegistry, clock driven.Clock) *CitationService {
	if clock == nil {
		clock = driven.SystemClock{}
	}
	return &CitationService{
		store:    store,
		resolver: &textResolver{store: store, normalisers: normalisers},
		clock:    clock,
		newID: func() (string, error) {
			id, err := gonanoid.New(citeIDLength)
			if err != nil {
				return "", err
			}
			return CiteIDPrefix + id, nil
		},
	}
}

// ==================== Make ====================

// Make resolves the target now and writes an immutable record.
func (s *CitationService) Make(ctx context.Context, req driving.MakeRequest) (*domain.Cite, error) {
	class := req.RetentionClass
	if class == "" {
		class = domain.RetentionStandard
	}
	if !class.IsValid() {
		return nil, fmt.Errorf("%w: retention class %q", domain.ErrInvalidInput, class)
	}

	cite, err := s.resolve(ctx, req.TargetID, req.Locator)
	if err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generating citation id: %w", err)
	}
	cite.CiteID = id
	cite.SchemaVersion = domain.CiteSchemaVersion
	cite.CreatedAt = s.clock.Now().UTC()
	cite.RetentionClass = class
	cite.Tags = req.Tags
	if req.Source != nil {
		cite.Source = req.Source
	}

	if err := validateCite(*cite); err != nil {
		return nil, err
	}
	if err := s.store.SaveCitation(ctx, *cite); err != nil {
		return nil, fmt.Errorf("saving citation: %w", err)
	}

	logger.L().Debug().Str("cite_id", cite.CiteID).Str("target", cite.ID).Msg("citation created")
	return cite, nil
}

// resolve captures quote, context, hash and path of a target as of now.
func (s *CitationService) resolve(ctx context.Context, targetID string, locator *domain.Span) (*domain.Cite, error) {
	node, err := s.store.GetNode(ctx, targetID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: target %s", domain.ErrNotFound, targetID)
		}
		return nil, err
	}

	switch node.Kind {
	case domain.NodeChunk:
		return s.resolveChunk(ctx, node.Chunk)
	case domain.NodeDoc:
		return s.resolveDoc(ctx, node.Doc, locator)
	case domain.NodeMemory:
		return resolveMemory(node.Memory, locator)
	default:
		return nil, fmt.Errorf("%w: cannot cite a %s", domain.ErrUnsupportedType, node.Kind)
	}
}

func (s *CitationService) resolveChunk(ctx context.Context, c *domain.Chunk) (*domain.Cite, error) {
	doc, err := s.liveDoc(ctx, c.DocID)
	if err != nil {
		return nil, err
	}

	cite := &domain.Cite{
		Type:   domain.CiteChunk,
		ID:     c.ID,
		Path:   doc.Path,
		SHA256: doc.SHA256,
		Loc:    domain.CiteLoc{Kind: c.Span.Kind, Start: c.Span.Start, End: c.Span.End},
		Quote:  c.Text,
		Source: doc.Source,
	}
	if text, err := s.resolver.docText(ctx, doc); err == nil {
		if pre, err := chunker.Surrounding(text, c.Span, domain.ContextWindow); err == nil {
			cite.Context = pre
		}
	} else {
		logger.Debug("no context for %s: %v", c.ID, err)
	}
	return cite, nil
}

func (s *CitationService) resolveDoc(ctx context.Context, doc *domain.Doc, locator *domain.Span) (*domain.Cite, error) {
	if doc.Retired {
		return nil, fmt.Errorf("%w: doc %s was replaced", domain.ErrNotFound, doc.ID)
	}
	text, err := s.resolver.docText(ctx, doc)
	if err != nil {
		return nil, err
	}

	span := narrow(text, locator)
	quote, surrounding, err := quoteWithContext(text, span)
	if err != nil {
		return nil, err
	}
	return &domain.Cite{
		Type:    domain.CiteDoc,
		ID:      doc.ID,
		Path:    doc.Path,
		SHA256:  doc.SHA256,
		Loc:     domain.CiteLoc{Kind: span.Kind, Start: span.Start, End: span.End},
		Quote:   quote,
		Context: surrounding,
		Source:  doc.Source,
	}, nil
}

func resolveMemory(m *domain.MemoryNote, locator *domain.Span) (*domain.Cite, error) {
	span := narrow(m.Text, locator)
	quote, surrounding, err := quoteWithContext(m.Text, span)
	if err != nil {
		return nil, err
	}
	return &domain.Cite{
		Type:    domain.CiteMemory,
		ID:      m.ID,
		SHA256:  domain.HashContent([]byte(m.Text)),
		Loc:     domain.CiteLoc{Kind: span.Kind, Start: span.Start, End: span.End},
		Quote:   quote,
		Context: surrounding,
	}, nil
}

// liveDoc loads a doc and rejects retired ones.
func (s *CitationService) liveDoc(ctx context.Context, docID string) (*domain.Doc, error) {
	node, err := s.store.GetNode(ctx, docID)
	if err != nil {
		return nil, err
	}
	if node.Doc.Retired {
		return nil, fmt.Errorf("%w: doc %s was replaced", domain.ErrNotFound, docID)
	}
	return node.Doc, nil
}

// ==================== Verify ====================

// Verify compares a record with the current state of its target. It never
// writes.
func (s *CitationService) Verify(ctx context.Context, citeID string) (*domain.Verification, error) {
	cite, err := s.store.GetCitation(ctx, citeID)
	if err != nil {
		return nil, err
	}

	v := &domain.Verification{CiteID: citeID, Valid: true}
	if cite.Type == domain.CiteMemory {
		err = s.verifyMemory(ctx, cite, v)
	} else {
		err = s.verifyDoc(ctx, cite, v)
	}
	if err != nil {
		return nil, err
	}

	logger.L().Debug().Str("cite_id", citeID).Bool("valid", v.Valid).Int("diagnostics", len(v.Diagnostics)).Msg("citation verified")
	return v, nil
}

func (s *CitationService) verifyDoc(ctx context.Context, cite *domain.Cite, v *domain.Verification) error {
	docID := cite.DocID()
	node, err := s.store.GetNode(ctx, docID)
	if isNotFound(err) {
		v.Fail(domain.DiagTargetMissing, msgTargetMissing)
		return nil
	}
	if err != nil {
		return err
	}
	doc := node.Doc
	if doc.Retired {
		v.Fail(domain.DiagTargetMissing, msgTargetMissing)
		return nil
	}

	if cite.Type == domain.CiteChunk {
		if _, err := s.store.GetNode(ctx, cite.ID); isNotFound(err) {
			v.Fail(domain.DiagTargetMissing, fmt.Sprintf("chunk %s no longer exists", cite.ID))
			return nil
		} else if err != nil {
			return err
		}
	}

	if doc.SHA256 != cite.SHA256 {
		v.Fail(domain.DiagContentMismatch, fmt.Sprintf("doc %s hash %s differs from recorded %s", doc.ID, doc.SHA256, cite.SHA256))
		return nil
	}

	if doc.Path != cite.Path {
		v.Note(domain.DiagPathMoved, fmt.Sprintf("moved from %s to %s", cite.Path, doc.Path))
	}

	text, err := s.currentText(ctx, doc, v)
	if err != nil {
		return err
	}
	if !v.Valid {
		return nil
	}

	span := domain.Span{Kind: cite.Loc.Kind, Start: cite.Loc.Start, End: cite.Loc.End}
	quote, err := chunker.Extract(text, span)
	if err != nil || quote != cite.Quote {
		v.Fail(domain.DiagQuoteMismatch, fmt.Sprintf("text at %s[%d,%d) no longer matches the quote", span.Kind, span.Start, span.End))
	}
	return nil
}

// currentText reads the file mapped to doc. A missing file is noted and the
// stored text is used instead; a changed file fails verification.
func (s *CitationService) currentText(ctx context.Context, doc *domain.Doc, v *domain.Verification) (string, error) {
	missing := false
	if doc.Path != "" {
		norm, err := s.resolver.readFile(ctx, doc.Path)
		switch {
		case err == nil:
			if domain.AddressDoc([]byte(norm.Text)) != doc.ID {
				v.Fail(domain.DiagContentMismatch, fmt.Sprintf("%s no longer hashes to doc %s", doc.Path, doc.ID))
				return "", nil
			}
			return norm.Text, nil
		case errors.Is(err, os.ErrNotExist):
			missing = true
			v.Note(domain.DiagFileMissing, fmt.Sprintf("%s does not exist", doc.Path))
		default:
			logger.Debug("reading %s for verification: %v", doc.Path, err)
		}
	}

	text, err := s.resolver.docText(ctx, &domain.Doc{ID: doc.ID, SHA256: doc.SHA256, Text: doc.Text})
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, domain.ErrNotFound) && missing:
		v.Valid = false
		return "", nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDrift):
		v.Fail(domain.DiagContentMismatch, err.Error())
		return "", nil
	default:
		return "", err
	}
}

func (s *CitationService) verifyMemory(ctx context.Context, cite *domain.Cite, v *domain.Verification) error {
	node, err := s.store.GetNode(ctx, cite.ID)
	if isNotFound(err) {
		v.Fail(domain.DiagTargetMissing, fmt.Sprintf("memory note %s no longer exists", cite.ID))
		return nil
	}
	if err != nil {
		return err
	}

	span := domain.Span{Kind: cite.Loc.Kind, Start: cite.Loc.Start, End: cite.Loc.End}
	quote, err := chunker.Extract(node.Memory.Text, span)
	if err != nil || quote != cite.Quote {
		v.Fail(domain.DiagQuoteMismatch, "memory note text no longer yields the quote")
	}
	return nil
}

// ==================== Open and List ====================

// Open returns display-ready citation data with the doc's current path.
func (s *CitationService) Open(ctx context.Context, citeID string) (*domain.OpenedCite, error) {
	cite, err := s.store.GetCitation(ctx, citeID)
	if err != nil {
		return nil, err
	}

	path := cite.Path
	if docID := cite.DocID(); docID != "" {
		if current, err := s.store.DocPath(ctx, docID); err == nil {
			path = current
		} else if !isNotFound(err) {
			return nil, err
		}
	}

	return &domain.OpenedCite{
		CiteID:  cite.CiteID,
		Path:    path,
		Quote:   cite.Quote,
		Context: cite.Context,
	}, nil
}

// List returns citations matching the filter, oldest first. Status is
// computed only when the filter asks for it.
func (s *CitationService) List(ctx context.Context, filter domain.CiteFilter) ([]domain.CiteSummary, error) {
	cites, err := s.store.ListCitations(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.CiteSummary //nolint:prealloc // filtered below
	for _, c := range cites {
		if !matchesFilter(c, filter) {
			continue
		}
		summary := domain.CiteSummary{
			CiteID:         c.CiteID,
			Type:           c.Type,
			ID:             c.ID,
			Path:           c.Path,
			Quote:          c.Quote,
			RetentionClass: c.RetentionClass,
			Tags:           c.Tags,
			CreatedAt:      c.CreatedAt,
		}
		if filter.Status != "" || filter.WithStatus {
			v, err := s.Verify(ctx, c.CiteID)
			if err != nil {
				return nil, err
			}
			summary.Status = domain.CiteStatusValid
			if !v.Valid {
				summary.Status = domain.CiteStatusDrifted
			}
			if filter.Status != "" && summary.Status != filter.Status {
				continue
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func matchesFilter(c domain.Cite, f domain.CiteFilter) bool {
	if len(f.Types) > 0 && !containsValue(f.Types, c.Type) {
		return false
	}
	if len(f.RetentionClasses) > 0 && !containsValue(f.RetentionClasses, c.RetentionClass) {
		return false
	}
	for _, tag := range f.Tags {
		if !containsValue(c.Tags, tag) {
			return false
		}
	}
	return true
}

func containsValue[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

// ==================== GC ====================

// GC removes reclaimable citations that are older than their TTL (or
// policy.MaxAge) and referenced by at most policy.MaxUsage DerivedFrom
// edges. Durable and pinned citations are never removed.
func (s *CitationService) GC(ctx context.Context, policy domain.GCPolicy) (*domain.GCReport, error) {
	if policy.MaxAge < 0 || policy.MaxUsage < 0 {
		return nil, fmt.Errorf("%w: negative gc policy", domain.ErrInvalidInput)
	}

	cites, err := s.store.ListCitations(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	report := &domain.GCReport{DryRun: policy.DryRun, Removed: []string{}}
	for _, c := range cites {
		reclaim, err := s.reclaimable(ctx, c, policy, now)
		if err != nil {
			return nil, err
		}
		if reclaim {
			report.Removed = append(report.Removed, c.CiteID)
		} else {
			report.Kept++
		}
	}
	sort.Strings(report.Removed)

	if !policy.DryRun && len(report.Removed) > 0 {
		if err := s.store.DeleteCitations(ctx, report.Removed); err != nil {
			return nil, fmt.Errorf("deleting citations: %w", err)
		}
	}

	logger.Info("gc: %d removed, %d kept (dry run: %t)", len(report.Removed), report.Kept, policy.DryRun)
	return report, nil
}

func (s *CitationService) reclaimable(ctx context.Context, c domain.Cite, policy domain.GCPolicy, now time.Time) (bool, error) {
	if !c.RetentionClass.Reclaimable() {
		return false, nil
	}
	ttl := c.RetentionClass.TTL()
	if policy.MaxAge > 0 {
		ttl = policy.MaxAge
	}
	if now.Sub(c.CreatedAt) < ttl {
		return false, nil
	}
	usage, err := s.store.CitationUsage(ctx, c.CiteID)
	if err != nil {
		return false, err
	}
	return usage <= policy.MaxUsage, nil
}
