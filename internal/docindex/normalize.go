package docindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so accented lookups like
// "Найти́" match their unaccented index terms.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the canonical form used for identifier fields:
// accent-folded, lowercased, ё collapsed to е, surrounding whitespace
// trimmed. Normalizing an already normalized string is a no-op.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "ё", "е")
	return strings.TrimSpace(folded)
}
