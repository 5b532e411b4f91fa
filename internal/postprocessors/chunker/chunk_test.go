package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

func TestChunk_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		window int
		stride int
		kind   domain.LocatorKind
	}{
		{"zero window", 0, 0, domain.LocatorChar},
		{"negative stride", 10, -1, domain.LocatorChar},
		{"stride equals window", 10, 10, domain.LocatorChar},
		{"unknown kind", 10, 2, "line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("text", tt.window, tt.stride, tt.kind)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestChunk_Char(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		w, err := Chunk("", 512, 128, domain.LocatorChar)
		require.NoError(t, err)
		assert.Empty(t, w)
	})

	t.Run("shorter than window", func(t *testing.T) {
		w, err := Chunk("hello", 512, 128, domain.LocatorChar)
		require.NoError(t, err)
		require.Len(t, w, 1)
		assert.Equal(t, domain.Span{Kind: domain.LocatorChar, Start: 0, End: 5}, w[0].Span)
		assert.Equal(t, "hello", w[0].Text)
	})

	t.Run("exact multiple ends without empty tail", func(t *testing.T) {
		w, err := Chunk(strings.Repeat("x", 10), 4, 2, domain.LocatorChar)
		require.NoError(t, err)
		var spans [][2]int
		for _, win := range w {
			assert.Positive(t, win.Span.Len())
			spans = append(spans, [2]int{win.Span.Start, win.Span.End})
		}
		assert.Equal(t, [][2]int{{0, 4}, {2, 6}, {4, 8}, {6, 10}}, spans)
	})

	t.Run("unicode scalar offsets", func(t *testing.T) {
		text := "héllo wörld ☃☃☃"
		w, err := Chunk(text, 5, 1, domain.LocatorChar)
		require.NoError(t, err)
		require.NotEmpty(t, w)
		assert.Equal(t, "héllo", w[0].Text)
		last := w[len(w)-1]
		assert.Equal(t, len([]rune(text)), last.Span.End)
	})

	t.Run("consecutive windows overlap by stride", func(t *testing.T) {
		w, err := Chunk(strings.Repeat("ab", 500), 100, 30, domain.LocatorChar)
		require.NoError(t, err)
		for i := 1; i < len(w)-1; i++ {
			assert.Equal(t, 30, w[i-1].Span.End-w[i].Span.Start)
		}
	})
}

func TestChunk_Tok(t *testing.T) {
	text := "  alpha beta\tgamma\n\ndelta epsilon  "
	w, err := Chunk(text, 3, 1, domain.LocatorTok)
	require.NoError(t, err)
	require.Len(t, w, 2)

	assert.Equal(t, domain.Span{Kind: domain.LocatorTok, Start: 0, End: 3}, w[0].Span)
	assert.Equal(t, "alpha beta\tgamma", w[0].Text)
	assert.Equal(t, domain.Span{Kind: domain.LocatorTok, Start: 2, End: 5}, w[1].Span)
	assert.Equal(t, "gamma\n\ndelta epsilon", w[1].Text)
}

func TestExtract_RoundTrip(t *testing.T) {
	text := strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 30)
	for _, kind := range []domain.LocatorKind{domain.LocatorChar, domain.LocatorTok} {
		t.Run(string(kind), func(t *testing.T) {
			windows, err := Chunk(text, 64, 16, kind)
			require.NoError(t, err)
			for _, w := range windows {
				got, err := Extract(text, w.Span)
				require.NoError(t, err)
				assert.Equal(t, w.Text, got)
			}
		})
	}
}

func TestExtract_OutOfRange(t *testing.T) {
	_, err := Extract("short", domain.Span{Kind: domain.LocatorChar, Start: 2, End: 50})
	assert.ErrorIs(t, err, ErrSpanOutOfRange)

	_, err = Extract("two tokens", domain.Span{Kind: domain.LocatorTok, Start: 0, End: 3})
	assert.ErrorIs(t, err, ErrSpanOutOfRange)
}

func TestSurrounding(t *testing.T) {
	text := "0123456789ABCDEFGHIJ"
	ctx, err := Surrounding(text, domain.Span{Kind: domain.LocatorChar, Start: 8, End: 12}, 5)
	require.NoError(t, err)
	assert.Equal(t, "34567", ctx.Pre)
	assert.Equal(t, "CDEFG", ctx.Post)

	ctx, err = Surrounding(text, domain.Span{Kind: domain.LocatorChar, Start: 0, End: 3}, 100)
	require.NoError(t, err)
	assert.Empty(t, ctx.Pre)
	assert.Equal(t, text[3:], ctx.Post)
}

func TestTokenize(t *testing.T) {
	toks := Tokenize([]rune(" a bb  ccc "))
	assert.Equal(t, []Token{{1, 2}, {3, 5}, {7, 10}}, toks)
	assert.Empty(t, Tokenize([]rune("   ")))
}
