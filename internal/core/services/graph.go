package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
)

// Ensure GraphService implements the interface.
var _ driving.GraphService = (*GraphService)(nil)

// GraphService exposes pattern queries over the store.
type GraphService struct {
	store driven.Store
}

// NewGraphService creates a new graph service.
func NewGraphService(store driven.Store) *GraphService {
	return &GraphService{store: store}
}

// Query parses and evaluates a pattern.
func (s *GraphService) Query(ctx context.Context, pattern string, limit int) ([]domain.Path, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	p.Limit = limit
	logger.Debug("Pattern: start=%s id=%q steps=%d limit=%d", p.StartKind, p.StartID, len(p.Steps), limit)
	return s.store.Traverse(ctx, p)
}

// Node returns one node.
func (s *GraphService) Node(ctx context.Context, id string) (domain.Node, error) {
	return s.store.GetNode(ctx, id)
}

// Stats counts nodes, edges and citations.
func (s *GraphService) Stats(ctx context.Context) (domain.GraphStats, error) {
	return s.store.Stats(ctx)
}

// RebuildIndexes rebuilds the vector and full-text indexes.
func (s *GraphService) RebuildIndexes(ctx context.Context) error {
	logger.Info("Rebuilding indexes")
	return s.store.RebuildIndexes(ctx)
}

// ParsePattern parses "Kind[:id] (-Edge-> Kind | <-Edge- Kind)...".
// Tokens are separated by whitespace.
func ParsePattern(s string) (domain.Pattern, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return domain.Pattern{}, fmt.Errorf("%w: empty pattern", domain.ErrInvalidInput)
	}
	if len(tokens)%2 == 0 {
		return domain.Pattern{}, fmt.Errorf("%w: pattern must end with a node kind", domain.ErrInvalidInput)
	}

	kind, id, _ := strings.Cut(tokens[0], ":")
	start := domain.NodeKind(kind)
	if !start.IsValid() {
		return domain.Pattern{}, fmt.Errorf("%w: node kind %q", domain.ErrInvalidInput, kind)
	}
	p := domain.Pattern{StartKind: start, StartID: id}

	for i := 1; i < len(tokens); i += 2 {
		edge, dir, err := parseEdge(tokens[i])
		if err != nil {
			return domain.Pattern{}, err
		}
		next := domain.NodeKind(tokens[i+1])
		if !next.IsValid() {
			return domain.Pattern{}, fmt.Errorf("%w: node kind %q", domain.ErrInvalidInput, tokens[i+1])
		}
		p.Steps = append(p.Steps, domain.Step{Edge: edge, Direction: dir, Kind: next})
	}
	return p, nil
}

// parseEdge parses "-Kind->" or "<-Kind-".
func parseEdge(tok string) (domain.EdgeKind, domain.Direction, error) {
	var name string
	var dir domain.Direction
	switch {
	case strings.HasPrefix(tok, "<-") && strings.HasSuffix(tok, "-") && len(tok) > 3:
		name, dir = tok[2:len(tok)-1], domain.Incoming
	case strings.HasPrefix(tok, "-") && strings.HasSuffix(tok, "->") && len(tok) > 3:
		name, dir = tok[1:len(tok)-2], domain.Outgoing
	default:
		return "", 0, fmt.Errorf("%w: edge %q must look like -Kind-> or <-Kind-", domain.ErrInvalidInput, tok)
	}
	kind := domain.EdgeKind(name)
	if !kind.IsValid() {
		return "", 0, fmt.Errorf("%w: edge kind %q", domain.ErrInvalidInput, name)
	}
	return kind, dir, nil
}
