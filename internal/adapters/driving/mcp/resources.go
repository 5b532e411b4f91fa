package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for ok resources.
	uriScheme = "ok://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "cites/{citeId}",
		Name:        "citation",
		Description: "A citation's quote with surrounding context",
		MIMEType:    "text/plain",
	}, s.handleCiteResource)

	if s.ports.Graph != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "stats",
			Name:        "stats",
			Description: "Node, edge and citation counts",
			MIMEType:    "application/json",
		}, s.handleStatsResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "nodes/{nodeId}",
			Name:        "node",
			Description: "A doc, chunk, memory, entity or topic node",
			MIMEType:    "application/json",
		}, s.handleNodeResource)
	}

	if s.ports.Distill != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "prompts/{name}",
			Name:        "distill-prompt",
			Description: "A prompt template for distilling memory notes",
			MIMEType:    "text/plain",
		}, s.handlePromptResource)
	}
}

// handleCiteResource renders a citation as plain text.
func (s *Server) handleCiteResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	citeID := extractID(req.Params.URI, "cites/")
	if citeID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	opened, err := s.ports.Citation.Open(ctx, citeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("opening citation: %w", err)
	}

	text := fmt.Sprintf("%s\n\n%s[%s]%s\n", opened.Path, opened.Context.Pre, opened.Quote, opened.Context.Post)
	return textResult(req.Params.URI, "text/plain", text), nil
}

// handleStatsResource returns graph statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Graph.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}
	return textResult(req.Params.URI, "application/json", string(data)), nil
}

// handleNodeResource returns one node as JSON.
func (s *Server) handleNodeResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	nodeID := extractID(req.Params.URI, "nodes/")
	if nodeID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	node, err := s.ports.Graph.Node(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrMalformedID) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting node: %w", err)
	}

	info := map[string]any{
		"kind": node.Kind,
		"id":   node.ID(),
		"text": node.Text(),
	}
	if node.Doc != nil {
		info["path"] = node.Doc.Path
		info["sha256"] = node.Doc.SHA256
		info["retired"] = node.Doc.Retired
	}
	if node.Chunk != nil {
		info["doc_id"] = node.Chunk.DocID
		info["start"] = node.Chunk.Span.Start
		info["end"] = node.Chunk.Span.End
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling node: %w", err)
	}
	return textResult(req.Params.URI, "application/json", string(data)), nil
}

// handlePromptResource returns a distillation prompt.
func (s *Server) handlePromptResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractID(req.Params.URI, "prompts/")
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	prompt, err := s.ports.Distill.Prompt(name)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return textResult(req.Params.URI, "text/plain", prompt), nil
}

func textResult(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: mimeType,
			Text:     text,
		}},
	}
}

// extractID extracts the id from a URI like ok://{collection}{id}.
// Chunk ids contain '#', which is kept.
func extractID(uri, collection string) string {
	prefix := uriScheme + collection
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
