package chunker

import "unicode"

// TokenizerVersion names the tokenization rule behind LocatorTok spans.
// Changing the rule requires a new version since it changes chunk ids.
const TokenizerVersion = "ws-v1"

// Token is a maximal run of non-space runes, in rune offsets.
type Token struct {
	Start int
	End   int
}

// Tokenize splits runes into whitespace-delimited tokens.
func Tokenize(runes []rune) []Token {
	var toks []Token
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, Token{Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, Token{Start: start, End: len(runes)})
	}
	return toks
}
