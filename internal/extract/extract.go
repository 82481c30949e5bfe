// Package extract removes page furniture from decision HTML and keeps the
// main content block. It fails open: when anything goes wrong, or the result
// is too thin to trust, the input is returned unchanged.
package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MinTextRunes is the confidence floor for extracted text.
const MinTextRunes = 200

// Fallback reasons reported when the input is returned unchanged.
const (
	FallbackParse  = "parse_error"
	FallbackFloor  = "below_floor"
	FallbackRender = "render_error"
	FallbackPanic  = "panic"
)

// Result is the outcome of cleaning one document.
type Result struct {
	HTML      string
	Extracted bool
	Fallback  string // set when Extracted is false
}

// Extractor cleans decision HTML. The zero value is not usable; call New.
type Extractor struct {
	minText int
}

// New returns an Extractor using the default confidence floor.
func New() *Extractor {
	return &Extractor{minText: MinTextRunes}
}

// NewWithFloor returns an Extractor with a custom confidence floor.
func NewWithFloor(minText int) *Extractor {
	if minText < 0 {
		minText = 0
	}
	return &Extractor{minText: minText}
}

// Clean runs the full pipeline over src.
func (e *Extractor) Clean(src string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{HTML: src, Fallback: FallbackPanic}
		}
	}()

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Result{HTML: src, Fallback: FallbackParse}
	}

	title := pageTitle(doc)

	filtered := filterCopy(doc)
	chosen := pruneCopy(selectContent(contentRoot(filtered)))
	container := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Article,
		Data:     "article",
		Attr:     []html.Attribute{{Key: "data-curated", Val: "true"}},
	}
	for c := chosen.FirstChild; c != nil; {
		next := c.NextSibling
		chosen.RemoveChild(c)
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				container.AppendChild(c)
			}
		case html.ElementNode:
			container.AppendChild(c)
		}
		c = next
	}

	if visibleRunes(container) < e.minText {
		return Result{HTML: src, Fallback: FallbackFloor}
	}

	var b strings.Builder
	if err := html.Render(&b, rebuild(title, container)); err != nil {
		return Result{HTML: src, Fallback: FallbackRender}
	}
	return Result{HTML: b.String(), Extracted: true}
}

// contentRoot picks <main>, then [role=main], then <body>, then the document.
func contentRoot(doc *html.Node) *html.Node {
	if n := find(doc, isTag(atom.Main)); n != nil {
		return n
	}
	if n := find(doc, func(n *html.Node) bool {
		return strings.EqualFold(strings.TrimSpace(attr(n, "role")), "main")
	}); n != nil {
		return n
	}
	if n := find(doc, isTag(atom.Body)); n != nil {
		return n
	}
	return doc
}

// selectContent returns the direct article/section/div child of root with
// the most visible text. Ties keep the first; no candidates selects root.
func selectContent(root *html.Node) *html.Node {
	var best *html.Node
	bestLen := -1
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !candidateTags[c.DataAtom] {
			continue
		}
		if l := visibleLen(c); l > bestLen {
			best, bestLen = c, l
		}
	}
	if best == nil {
		return root
	}
	return best
}

func pageTitle(doc *html.Node) string {
	t := find(doc, isTag(atom.Title))
	if t == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(textPieces(t), " "))
}

// rebuild assembles the minimal output document around container.
func rebuild(title string, container *html.Node) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html)
	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	head.AppendChild(meta)
	if title != "" {
		t := element(atom.Title)
		t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
		head.AppendChild(t)
	}
	body := element(atom.Body)
	body.AppendChild(container)

	root.AppendChild(head)
	root.AppendChild(body)
	doc.AppendChild(root)
	return doc
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

var defaultExtractor = New()

// Clean runs the default Extractor over src.
func Clean(src string) Result {
	return defaultExtractor.Clean(src)
}
