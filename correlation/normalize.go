package correlation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped before comparing product labels with order titles
var stopWords = map[string]struct{}{
	"con": {}, "del": {}, "las": {}, "los": {}, "para": {}, "por": {}, "una": {}, "uno": {},
	"and": {}, "for": {}, "the": {}, "with": {},
}

const minTokenLength = 3

// NormalizeText lowercases s, strips diacritics and punctuation and collapses whitespace.
// "Querétaro," and "queretaro" normalize to the same value.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the distinct significant tokens of s after normalization
func Tokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(NormalizeText(s)) {
		if len([]rune(tok)) < minTokenLength {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// ProductOverlap reports whether at least half of the label's tokens appear in title
func ProductOverlap(label, title string) bool {
	labelTokens := Tokens(label)
	if len(labelTokens) == 0 {
		return false
	}
	titleTokens := make(map[string]struct{})
	for _, tok := range Tokens(title) {
		titleTokens[tok] = struct{}{}
	}
	if len(titleTokens) == 0 {
		return false
	}

	shared := 0
	for _, tok := range labelTokens {
		if _, ok := titleTokens[tok]; ok {
			shared++
		}
	}
	return shared > 0 && shared*2 >= len(labelTokens)
}

// NormalizeItemID canonicalizes marketplace item ids: "mlm-123" becomes "MLM123"
func NormalizeItemID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(id)) {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sameLocation compares a free-text hint with an address component
func sameLocation(hint *string, normalizedTarget string) bool {
	if hint == nil || normalizedTarget == "" {
		return false
	}
	return NormalizeText(*hint) == normalizedTarget
}
