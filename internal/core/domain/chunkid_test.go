package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_RoundTrip(t *testing.T) {
	spans := []Span{
		{Kind: LocatorChar, Start: 0, End: 512},
		{Kind: LocatorChar, Start: 1152, End: 1300},
		{Kind: LocatorTok, Start: 10, End: 11},
	}
	for _, span := range spans {
		id := FormatChunkID("0123456789abcdef", span)
		docID, got, err := ParseChunkID(id)
		require.NoError(t, err, id)
		assert.Equal(t, "0123456789abcdef", docID)
		assert.Equal(t, span, got)
	}
}

func TestFormatChunkID(t *testing.T) {
	id := FormatChunkID("0123456789abcdef", Span{Kind: LocatorChar, Start: 384, End: 896})
	assert.Equal(t, "0123456789abcdef#char[384]-[896]", id)
}

func TestParseChunkID_Malformed(t *testing.T) {
	bad := []string{
		"",
		"0123456789abcdef",
		"0123456789abcdef#",
		"0123456789abcde#char[0]-[1]",
		"0123456789ABCDEF#char[0]-[1]",
		"0123456789abcdef#line[0]-[1]",
		"0123456789abcdef#char[0]",
		"0123456789abcdef#char0-1",
		"0123456789abcdef#char[-1]-[1]",
		"0123456789abcdef#char[5]-[5]",
		"0123456789abcdef#char[7]-[5]",
		"0123456789abcdef#char[01]-[5]",
		"0123456789abcdef#char[a]-[5]",
		"0123456789abcdef#char[0]-[5]x",
		"0123456789abcdef#char[0]-[5]-[6]",
	}
	for _, id := range bad {
		t.Run(id, func(t *testing.T) {
			_, _, err := ParseChunkID(id)
			assert.ErrorIs(t, err, ErrMalformedID)
		})
	}
}
