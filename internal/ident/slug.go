package ident

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugRe = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// Slug folds diacritics, collapses every run of characters outside
// [A-Za-z0-9-] to a single hyphen and trims hyphens. Case is preserved.
func Slug(s string) string {
	s = nonSlugRe.ReplaceAllString(fold(s), "-")
	return strings.Trim(s, "-")
}

// fold strips combining marks after canonical decomposition ("Comisión" -> "Comision").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
