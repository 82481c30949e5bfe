package extract

import (
	"strings"
	"unicode"
)

// boilerplateKeywords flag page furniture by id/class. Hyphenated entries
// match a run of consecutive words.
var boilerplateKeywords = []string{
	"breadcrumb", "breadcrumbs", "navbar", "navigation", "site-header",
	"site-footer", "cookie", "consent", "banner", "sidebar", "social",
	"share", "toc", "skip-link", "masthead", "branding", "advert", "ad",
	"promo", "newsletter", "modal", "popup", "utility", "topbar", "menubar",
	"pager", "pagination",
}

// Keywords in at least this many letters also match as a word prefix
// ("advert" flags "advertisement").
const prefixMatchLen = 5

var compiledKeywords = compileKeywords(boilerplateKeywords)

// Keywords returns the boilerplate keyword table.
func Keywords() []string {
	out := make([]string, len(boilerplateKeywords))
	copy(out, boilerplateKeywords)
	return out
}

func compileKeywords(kws []string) [][]string {
	out := make([][]string, 0, len(kws))
	for _, k := range kws {
		out = append(out, words(k))
	}
	return out
}

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesBoilerplate reports whether an element's id and class words contain
// any keyword.
func matchesBoilerplate(id, class string) bool {
	ws := words(id + " " + class)
	if len(ws) == 0 {
		return false
	}
	for _, kw := range compiledKeywords {
		if containsRun(ws, kw) {
			return true
		}
	}
	return false
}

func containsRun(ws, kw []string) bool {
	if len(kw) == 0 || len(kw) > len(ws) {
		return false
	}
	for i := 0; i+len(kw) <= len(ws); i++ {
		if runAt(ws[i:], kw) {
			return true
		}
	}
	return false
}

func runAt(ws, kw []string) bool {
	if len(kw) == 1 {
		return wordMatches(ws[0], kw[0])
	}
	for j, k := range kw {
		if ws[j] != k {
			return false
		}
	}
	return true
}

func wordMatches(w, kw string) bool {
	if w == kw {
		return true
	}
	return len(kw) >= prefixMatchLen && strings.HasPrefix(w, kw)
}
