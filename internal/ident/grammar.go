package ident

import "regexp"

// Grammar is one administrative identifier pattern.
type Grammar struct {
	Name    string
	Pattern *regexp.Regexp
}

// grammars is tested in order against URL and title text. Order matters:
// a code like EDA-UD-1234 also contains a UD- match.
var grammars = []Grammar{
	{"ADJ", regexp.MustCompile(`(?i)\bADJ-\d{5,}\b`)},
	{"IR-SC", regexp.MustCompile(`(?i)\bIR-SC-\d{5,}\b`)},
	{"LCR", regexp.MustCompile(`(?i)\bLCR-\d{5,}\b`)},
	{"EET", regexp.MustCompile(`(?i)\bEET-\d{5,}\b`)},
	{"DEC", regexp.MustCompile(`(?i)\bDEC-\d{5,}\b`)},
	{"WTC", regexp.MustCompile(`(?i)\bWTC-[A-Z0-9\-_/]{4,}\b`)},
	{"EDA", regexp.MustCompile(`(?i)\bEDA-[A-Z0-9\-_/]{4,}\b`)},
	{"UD", regexp.MustCompile(`(?i)\bUD-[A-Z0-9\-_/]{4,}\b`)},
	{"MN", regexp.MustCompile(`(?i)\bMN-[A-Z0-9\-_/]{4,}\b`)},
	{"CA", regexp.MustCompile(`(?i)\bCA-[A-Z0-9\-_/]{4,}\b`)},
}

// Grammars returns the identifier grammar table in priority order.
func Grammars() []Grammar {
	out := make([]Grammar, len(grammars))
	copy(out, grammars)
	return out
}
