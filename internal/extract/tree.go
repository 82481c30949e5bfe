package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Non-content elements removed by tag identity.
var droppedTags = map[atom.Atom]bool{
	atom.Header:   true,
	atom.Footer:   true,
	atom.Nav:      true,
	atom.Aside:    true,
	atom.Iframe:   true,
	atom.Noscript: true,
	atom.Script:   true,
	atom.Style:    true,
}

// Document skeleton elements are never removed by the keyword filter.
var structuralTags = map[atom.Atom]bool{
	atom.Html: true,
	atom.Head: true,
	atom.Body: true,
	atom.Main: true,
}

// Candidate containers for the main content block.
var candidateTags = map[atom.Atom]bool{
	atom.Article: true,
	atom.Section: true,
	atom.Div:     true,
}

// Text-bearing containers pruned when they end up empty.
var prunableTags = map[atom.Atom]bool{
	atom.P:       true,
	atom.Div:     true,
	atom.Section: true,
	atom.Article: true,
}

// filterCopy returns a copy of n without comments, dropped tags and
// boilerplate-flagged elements. It returns nil when n itself is filtered.
func filterCopy(n *html.Node) *html.Node {
	switch n.Type {
	case html.CommentNode:
		return nil
	case html.ElementNode:
		if droppedTags[n.DataAtom] {
			return nil
		}
		if !structuralTags[n.DataAtom] && matchesBoilerplate(attr(n, "id"), attr(n, "class")) {
			return nil
		}
	}

	out := shallowClone(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if cc := filterCopy(c); cc != nil {
			out.AppendChild(cc)
		}
	}
	return out
}

// pruneCopy returns a copy of n's subtree without prunable descendants whose
// visible text is empty. n itself is always kept.
func pruneCopy(n *html.Node) *html.Node {
	out := shallowClone(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && prunableTags[c.DataAtom] && visibleRunes(c) == 0 {
			continue
		}
		out.AppendChild(pruneCopy(c))
	}
	return out
}

func shallowClone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	return c
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// find returns the first element in document order satisfying match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, match); f != nil {
			return f
		}
	}
	return nil
}

func isTag(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

// textPieces collects the trimmed, non-empty text nodes under n in order.
func textPieces(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// visibleLen is the rune length of n's text pieces joined by single spaces.
// It scores candidates.
func visibleLen(n *html.Node) int {
	pieces := textPieces(n)
	if len(pieces) == 0 {
		return 0
	}
	total := len(pieces) - 1
	for _, p := range pieces {
		total += utf8.RuneCountInString(p)
	}
	return total
}

// visibleRunes is the rune length of n's text pieces concatenated. It drives
// the confidence floor and empty-container pruning.
func visibleRunes(n *html.Node) int {
	total := 0
	for _, p := range textPieces(n) {
		total += utf8.RuneCountInString(p)
	}
	return total
}
