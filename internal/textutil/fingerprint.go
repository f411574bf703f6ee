package textutil

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenSplitPattern matches non-alphanumeric character sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// noiseTokens appear in release names but never in book titles.
var noiseTokens = map[string]struct{}{
	"m4b": {}, "m4a": {}, "mp3": {}, "flac": {}, "epub": {}, "mobi": {}, "azw3": {}, "pdf": {},
	"audiobook": {}, "unabridged": {}, "abridged": {}, "retail": {}, "kbps": {}, "the": {}, "and": {},
}

var bitratePattern = regexp.MustCompile(`^\d+k(bps)?$`)

// Fingerprint represents a term-frequency vector for text similarity comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// Fold lowercases text and removes combining marks, so "Brontë" and
// "Bronte" compare equal.
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// Tokenize splits folded text into tokens, dropping single characters and
// release noise.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(Fold(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 2 {
			continue
		}
		if _, noisy := noiseTokens[token]; noisy || bitratePattern.MatchString(token) {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenCount returns the number of unique tokens in the fingerprint.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

// Coverage reports how much of f's weight is present in other, from 0 to 1.
func (f *Fingerprint) Coverage(other *Fingerprint) float64 {
	if f == nil || other == nil {
		return 0
	}
	var total, matched float64
	for token, count := range f.tokens {
		total += count
		if have, ok := other.tokens[token]; ok {
			matched += math.Min(count, have)
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}
