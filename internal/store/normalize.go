// Package store – search-term folding.
//
// The remote API's search is case- and accent-insensitive (back-office data
// is full of names like "José" and "Müller"). The offline scan must match
// the same rows the server would, so both the stored search text and the
// incoming term are folded through the same transform before comparison.
package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldChain decomposes, strips combining marks, and recomposes. Safe for
// concurrent use: transform.Chain values are stateless templates and each
// call to transform.String works on its own state.
var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics, returning the canonical form
// used for offline substring matching.
func Fold(s string) string {
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		// Fall back to plain lowercasing on malformed input.
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
