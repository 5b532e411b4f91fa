// Package mcp provides an MCP (Model Context Protocol) server adapter for ok.
// It lets AI assistants search, cite and distill over the local graph.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingCitationService is returned when the citation service is not provided.
var ErrMissingCitationService = errors.New("mcp: citation service is required")
