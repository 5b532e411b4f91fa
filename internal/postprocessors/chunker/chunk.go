package chunker

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// ErrSpanOutOfRange indicates a span does not fit the text it is applied to.
var ErrSpanOutOfRange = errors.New("span out of range")

// Window is one chunk boundary and its materialised text.
type Window struct {
	Span domain.Span
	Text string
}

// Chunk splits text into overlapping windows of windowSize units.
// Consecutive windows start windowSize-stride units apart, so they share
// stride units. Spans are half-open and the last window may be short.
// Empty text yields no windows. The result depends only on the arguments.
func Chunk(text string, windowSize, stride int, kind domain.LocatorKind) ([]Window, error) {
	if windowSize <= 0 || stride < 0 || stride >= windowSize {
		return nil, fmt.Errorf("%w: window %d stride %d", domain.ErrInvalidInput, windowSize, stride)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: locator %q", domain.ErrInvalidInput, kind)
	}

	runes := []rune(text)
	var toks []Token
	n := len(runes)
	if kind == domain.LocatorTok {
		toks = Tokenize(runes)
		n = len(toks)
	}
	if n == 0 {
		return nil, nil
	}

	step := windowSize - stride
	windows := make([]Window, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + windowSize
		if end > n {
			end = n
		}
		lo, hi := start, end
		if kind == domain.LocatorTok {
			lo, hi = toks[start].Start, toks[end-1].End
		}
		windows = append(windows, Window{
			Span: domain.Span{Kind: kind, Start: start, End: end},
			Text: string(runes[lo:hi]),
		})
		if end == n {
			break
		}
	}
	return windows, nil
}

// RuneRange converts a span to rune offsets within text.
func RuneRange(runes []rune, span domain.Span) (int, int, error) {
	if !span.Valid() {
		return 0, 0, fmt.Errorf("%w: %+v", domain.ErrInvalidInput, span)
	}
	switch span.Kind {
	case domain.LocatorChar:
		if span.End > len(runes) {
			return 0, 0, fmt.Errorf("%w: end %d beyond %d runes", ErrSpanOutOfRange, span.End, len(runes))
		}
		return span.Start, span.End, nil
	default:
		toks := Tokenize(runes)
		if span.End > len(toks) {
			return 0, 0, fmt.Errorf("%w: end %d beyond %d tokens", ErrSpanOutOfRange, span.End, len(toks))
		}
		return toks[span.Start].Start, toks[span.End-1].End, nil
	}
}

// Extract returns the text covered by span.
func Extract(text string, span domain.Span) (string, error) {
	runes := []rune(text)
	lo, hi, err := RuneRange(runes, span)
	if err != nil {
		return "", err
	}
	return string(runes[lo:hi]), nil
}

// Surrounding returns up to n runes before and after the span.
func Surrounding(text string, span domain.Span, n int) (domain.CiteContext, error) {
	runes := []rune(text)
	lo, hi, err := RuneRange(runes, span)
	if err != nil {
		return domain.CiteContext{}, err
	}
	preStart := lo - n
	if preStart < 0 {
		preStart = 0
	}
	postEnd := hi + n
	if postEnd > len(runes) {
		postEnd = len(runes)
	}
	return domain.CiteContext{
		Pre:  string(runes[preStart:lo]),
		Post: string(runes[hi:postEnd]),
	}, nil
}
