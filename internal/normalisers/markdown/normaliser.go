package markdown

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// frontMatter is the subset of YAML front matter that carries provenance.
type frontMatter struct {
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
	Page   int    `yaml:"page"`
}

// Normalise strips Markdown formatting and front matter. A "source" or
// "url" key in the front matter becomes the document's external source.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormalisedDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	meta, body, err := splitFrontMatter(string(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("markdown front matter in %s: %w", raw.Path, err)
	}

	return &domain.NormalisedDocument{
		Path:   raw.Path,
		Text:   stripMarkdown(body),
		Source: meta.source(),
	}, nil
}

func (m frontMatter) source() *domain.CiteSource {
	url := m.URL
	if url == "" {
		url = m.Source
	}
	if url == "" && m.Page == 0 {
		return nil
	}
	return &domain.CiteSource{URL: url, Page: m.Page}
}

// splitFrontMatter separates a leading "---" delimited YAML block from the body.
func splitFrontMatter(content string) (frontMatter, string, error) {
	var meta frontMatter

	normalised := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalised, "---\n") {
		return meta, content, nil
	}
	rest := normalised[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, content, nil
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return meta, "", err
	}

	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return meta, body, nil
}

var (
	fencePattern        = regexp.MustCompile("(?m)^[ \t]*(```|~~~)[^\n]*\n?")
	inlineCodePattern   = regexp.MustCompile("`([^`]+)`")
	imagePattern        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkPattern         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingPattern      = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	emphasisPattern     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italicPattern       = regexp.MustCompile(`(^|\s)\*([^*\s][^*]*)\*`)
	blockquotePattern   = regexp.MustCompile(`(?m)^>\s?`)
	rulePattern         = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	listPattern         = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedListPattern = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	blankRunPattern     = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown removes common Markdown formatting. Code is kept as
// text since it is often what a citation quotes.
func stripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	content = fencePattern.ReplaceAllString(content, "")
	content = inlineCodePattern.ReplaceAllString(content, "$1")
	content = imagePattern.ReplaceAllString(content, "$1")
	content = linkPattern.ReplaceAllString(content, "$1")
	content = headingPattern.ReplaceAllString(content, "")
	content = emphasisPattern.ReplaceAllString(content, "$2")
	content = italicPattern.ReplaceAllString(content, "$1$2")
	content = blockquotePattern.ReplaceAllString(content, "")
	content = rulePattern.ReplaceAllString(content, "")
	content = listPattern.ReplaceAllString(content, "")
	content = numberedListPattern.ReplaceAllString(content, "")
	content = blankRunPattern.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
