package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestSupportedMIMETypes(t *testing.T) {
	normaliser := New()
	mimeTypes := normaliser.SupportedMIMETypes()

	require.NotEmpty(t, mimeTypes)
	assert.Contains(t, mimeTypes, "text/markdown")
	assert.Contains(t, mimeTypes, "text/x-markdown")
	assert.Len(t, mimeTypes, 2)
}

func TestPriority(t *testing.T) {
	normaliser := New()
	assert.Equal(t, 50, normaliser.Priority())
}

func TestNormalise_Success(t *testing.T) {
	normaliser := New()
	ctx := context.Background()

	raw := &domain.RawDocument{
		Path:     "/path/to/document.md",
		MIMEType: "text/markdown",
		Content:  []byte("# Hello World\n\nThis is a **test**."),
	}

	result, err := normaliser.Normalise(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, raw.Path, result.Path)
	assert.Equal(t, "Hello World\n\nThis is a test.", result.Text)
	assert.Nil(t, result.Source)
}

func TestNormalise_NilDocument(t *testing.T) {
	normaliser := New()

	result, err := normaliser.Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	normaliser := New()

	result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/path/to/empty.md",
		Content: []byte(""),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestNormalise_FrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		source   *domain.CiteSource
		expected string
	}{
		{
			name:     "url and page",
			content:  "---\nurl: https://example.com/paper.pdf\npage: 12\n---\nBody text",
			source:   &domain.CiteSource{URL: "https://example.com/paper.pdf", Page: 12},
			expected: "Body text",
		},
		{
			name:     "source key",
			content:  "---\nsource: https://example.com/post\nauthor: someone\n---\n\nBody",
			source:   &domain.CiteSource{URL: "https://example.com/post"},
			expected: "Body",
		},
		{
			name:     "no provenance keys",
			content:  "---\ntitle: Notes\n---\nBody",
			source:   nil,
			expected: "Body",
		},
		{
			name:     "crlf line endings",
			content:  "---\r\nurl: https://example.com\r\n---\r\nBody",
			source:   &domain.CiteSource{URL: "https://example.com"},
			expected: "Body",
		},
		{
			name:     "unterminated block is body",
			content:  "---\nurl: https://example.com\nBody",
			source:   nil,
			expected: "url: https://example.com\nBody",
		},
	}

	normaliser := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
				Path:    "/doc.md",
				Content: []byte(tc.content),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.source, result.Source)
			assert.Equal(t, tc.expected, result.Text)
		})
	}
}

func TestNormalise_InvalidFrontMatter(t *testing.T) {
	normaliser := New()

	_, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/bad.md",
		Content: []byte("---\npage: [unclosed\n---\nBody"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/bad.md")
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "headings removed",
			input:    "# Title\n## Subtitle\n### Third",
			expected: "Title\nSubtitle\nThird",
		},
		{
			name:     "bold removed",
			input:    "This is **bold** text",
			expected: "This is bold text",
		},
		{
			name:     "italic removed",
			input:    "This is *very* important",
			expected: "This is very important",
		},
		{
			name:     "snake case kept",
			input:    "call load_config first",
			expected: "call load_config first",
		},
		{
			name:     "links converted",
			input:    "Click [here](https://example.com)",
			expected: "Click here",
		},
		{
			name:     "images keep alt text",
			input:    "See ![a diagram](image.png) here",
			expected: "See a diagram here",
		},
		{
			name:     "code fences removed and code kept",
			input:    "Before\n```go\ncode here\n```\nAfter",
			expected: "Before\ncode here\nAfter",
		},
		{
			name:     "inline code kept",
			input:    "Use `code` here",
			expected: "Use code here",
		},
		{
			name:     "blockquotes cleaned",
			input:    "> This is a quote",
			expected: "This is a quote",
		},
		{
			name:     "list markers removed",
			input:    "- Item 1\n- Item 2",
			expected: "Item 1\nItem 2",
		},
		{
			name:     "numbered list markers removed",
			input:    "1. First\n2. Second",
			expected: "First\nSecond",
		},
		{
			name:     "horizontal rule removed",
			input:    "Above\n\n---\n\nBelow",
			expected: "Above\n\nBelow",
		},
		{
			name:     "blank runs collapsed",
			input:    "One\n\n\n\n\nTwo",
			expected: "One\n\nTwo",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripMarkdown(tc.input))
		})
	}
}

func TestNormalise_Deterministic(t *testing.T) {
	normaliser := New()
	raw := &domain.RawDocument{
		Path:    "/doc.md",
		Content: []byte("# Title\n\nSome *text* with a [link](x) and `code`."),
	}

	first, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	second, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
