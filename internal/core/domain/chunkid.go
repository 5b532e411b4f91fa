package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatChunkID composes a chunk id of the form
// <docId>#<kind>[<start>]-[<end>]. It performs no hashing.
func FormatChunkID(docID string, span Span) string {
	return fmt.Sprintf("%s#%s[%d]-[%d]", docID, span.Kind, span.Start, span.End)
}

// ParseChunkID recovers the doc id and span from a chunk id.
// Any deviation from the grammar returns ErrMalformedID.
func ParseChunkID(id string) (string, Span, error) {
	docID, rest, ok := strings.Cut(id, "#")
	if !ok || !IsDocID(docID) {
		return "", Span{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}

	open := strings.IndexByte(rest, '[')
	if open <= 0 {
		return "", Span{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	kind := LocatorKind(rest[:open])
	if !kind.IsValid() {
		return "", Span{}, fmt.Errorf("%w: unknown locator %q", ErrMalformedID, kind)
	}

	left, right, ok := strings.Cut(rest[open:], "-")
	if !ok {
		return "", Span{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	start, err := parseBracketed(left)
	if err != nil {
		return "", Span{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	end, err := parseBracketed(right)
	if err != nil {
		return "", Span{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}

	span := Span{Kind: kind, Start: start, End: end}
	if !span.Valid() {
		return "", Span{}, fmt.Errorf("%w: empty or inverted span in %q", ErrMalformedID, id)
	}
	return docID, span, nil
}

// parseBracketed parses "[n]" where n is a canonical non-negative decimal.
func parseBracketed(s string) (int, error) {
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return 0, ErrMalformedID
	}
	digits := s[1 : len(s)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, ErrMalformedID
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, ErrMalformedID
	}
	return strconv.Atoi(digits)
}
