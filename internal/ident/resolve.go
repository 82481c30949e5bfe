// Package ident derives stable, filesystem-safe decision identifiers from
// noisy URL and title text.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// SyntheticPrefix marks identifiers synthesized from a digest because no
// usable text was found. Operators review these by prefix.
const SyntheticPrefix = "NOID-"

// Source names which rule produced an identifier.
type Source string

const (
	SourceGrammar Source = "grammar"
	SourceURL     Source = "url"
	SourceTitle   Source = "title"
	SourceDigest  Source = "digest"
)

// Resolution is an identifier together with the rule that produced it.
type Resolution struct {
	ID      string `json:"identifier"`
	Source  Source `json:"source"`
	Grammar string `json:"grammar,omitempty"`
}

var docExtRe = regexp.MustCompile(`(?i)\.(html?|pdf|docx?)$`)

// Resolve returns the canonical identifier for a detail URL and title.
func Resolve(detailURL, title string) string {
	return ResolveDetail(detailURL, title).ID
}

// ResolveDetail runs the grammar table, then the URL segment, then the title
// slug, and finally a digest of the normalized inputs.
func ResolveDetail(detailURL, title string) Resolution {
	hay := strings.TrimSpace(detailURL + " " + title)
	for _, g := range grammars {
		if m := g.Pattern.FindString(hay); m != "" {
			return Resolution{ID: Sanitize(m), Source: SourceGrammar, Grammar: g.Name}
		}
	}

	if seg := urlSegment(detailURL); seg != "" {
		return Resolution{ID: Sanitize(seg), Source: SourceURL}
	}

	if s := Slug(title); s != "" {
		return Resolution{ID: Sanitize(s), Source: SourceTitle}
	}

	return Resolution{ID: Synthetic(detailURL, title), Source: SourceDigest}
}

// Synthetic returns a digest identifier that is stable across runs for the
// same URL and title.
func Synthetic(detailURL, title string) string {
	key := strings.ToLower(strings.TrimSpace(detailURL)) + "\n" + strings.Join(strings.Fields(title), " ")
	sum := sha256.Sum256([]byte(key))
	return SyntheticPrefix + strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}

// Sanitize trims and uppercases an identifier and replaces path separators
// with hyphens.
func Sanitize(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	return strings.NewReplacer("/", "-", `\`, "-").Replace(id)
}

// Normalize sanitizes a stored identifier, re-resolving from the URL and
// title when nothing usable remains.
func Normalize(id, detailURL, title string) string {
	s := Sanitize(id)
	if strings.Trim(s, ".-") == "" {
		return Resolve(detailURL, title)
	}
	return s
}

func urlSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	seg := path.Base(p)
	if seg == "." || seg == "/" {
		return ""
	}
	return Slug(docExtRe.ReplaceAllString(seg, ""))
}
