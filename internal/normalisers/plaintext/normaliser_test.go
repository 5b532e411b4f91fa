package plaintext

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
	assert.Contains(t, mimeTypes, "text/plain")
	assert.Contains(t, mimeTypes, "text/x-go")
	assert.Contains(t, mimeTypes, "application/json")
	assert.NotContains(t, mimeTypes, "text/markdown")
}

func TestPriority(t *testing.T) {
	normaliser := New()
	assert.Equal(t, 5, normaliser.Priority())
}

func TestNormalise_Success(t *testing.T) {
	normaliser := New()
	ctx := context.Background()

	raw := &domain.RawDocument{
		Path:     "/path/to/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("This is plain text content.\n"),
	}

	result, err := normaliser.Normalise(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, raw.Path, result.Path)
	assert.Equal(t, "This is plain text content.\n", result.Text)
	assert.Nil(t, result.Source)
}

func TestNormalise_NilDocument(t *testing.T) {
	normaliser := New()
	ctx := context.Background()

	result, err := normaliser.Normalise(ctx, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	normaliser := New()

	result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/path/to/empty.txt",
		Content: []byte(""),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestNormalise_PreservesWhitespace(t *testing.T) {
	normaliser := New()
	content := "  leading\r\n\ttabbed\n\n\ntrailing  "

	result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/notes.txt",
		Content: []byte(content),
	})
	require.NoError(t, err)
	assert.Equal(t, content, result.Text)
}

func TestNormalise_InvalidUTF8(t *testing.T) {
	normaliser := New()

	result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/broken.txt",
		Content: []byte{'o', 'k', 0xff, 0xfe, '!'},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok�!", result.Text)
}

func TestNormalise_Unicode(t *testing.T) {
	normaliser := New()
	content := "naïve café 日本語 🎉"

	result, err := normaliser.Normalise(context.Background(), &domain.RawDocument{
		Path:    "/unicode.txt",
		Content: []byte(content),
	})
	require.NoError(t, err)
	assert.Equal(t, content, result.Text)
}

func TestNormaliser_ImplementsInterface(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
