package domain

import "strings"

// spaces are removed outright, full-width punctuation folds to ASCII
var normalizer = strings.NewReplacer(
	" ", "",
	"　", "",
	"＊", "*",
	"（", "(",
	"）", ")",
)

// Normalize canonicalizes a character name for comparison. It is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(normalizer.Replace(s))
}

// NormalizeComposition normalizes every slot of c.
func NormalizeComposition(c Composition) Composition {
	var out Composition
	for i, s := range c {
		out[i] = Normalize(s)
	}
	return out
}
