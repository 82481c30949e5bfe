package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longText = strings.TrimSpace(strings.Repeat("The adjudicator found the complaint well founded. ", 10))

func page(body string) string {
	return `<!DOCTYPE html><html><head><title> Decision ADJ-00012345 </title></head><body>` + body + `</body></html>`
}

func TestClean_ExactOutput(t *testing.T) {
	t.Parallel()

	in := page(`<nav><a href="/">Home</a></nav><div id="content"><p>` + longText + `</p></div>`)
	want := `<!DOCTYPE html><html><head><meta charset="utf-8"/><title>Decision ADJ-00012345</title></head>` +
		`<body><article data-curated="true"><p>` + longText + `</p></article></body></html>`

	res := New().Clean(in)
	assert.True(t, res.Extracted)
	assert.Empty(t, res.Fallback)
	assert.Equal(t, want, res.HTML)
}

func TestClean_Deterministic(t *testing.T) {
	t.Parallel()

	in := page(`<header>Site</header><!-- c --><main><section class="body"><h1>Title</h1><p>` + longText +
		`</p></section><div class="share-buttons">Share</div></main><footer>f</footer>`)

	first := Clean(in)
	for range 5 {
		assert.Equal(t, first, Clean(in))
	}
}

func TestClean_FloorReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	inputs := []string{
		page(`<nav>Home</nav><div><p>Short decision.</p></div>`),
		`not html at all`,
		``,
		page(`<div class="cookie">` + longText + `</div><p>tiny</p>`),
	}
	for _, in := range inputs {
		res := Clean(in)
		assert.False(t, res.Extracted)
		assert.Equal(t, FallbackFloor, res.Fallback)
		assert.Equal(t, in, res.HTML)
	}
}

func TestClean_RemovesBoilerplate(t *testing.T) {
	t.Parallel()

	in := page(`<div id="main-content">` +
		`<div class="breadcrumbs">Home &gt; Decisions</div>` +
		`<script>var tracking = 1;</script><style>p{}</style>` +
		`<!-- internal note -->` +
		`<aside>Related</aside>` +
		`<div id="cookieConsent">We use cookies</div>` +
		`<ul class="pagination"><li>1</li></ul>` +
		`<p>` + longText + `</p>` +
		`<div class="ad-slot">Buy now</div>` +
		`</div>`)

	res := Clean(in)
	require.True(t, res.Extracted)
	for _, gone := range []string{"Home &gt; Decisions", "tracking", "p{}", "internal note", "Related", "We use cookies", "<li>1</li>", "Buy now"} {
		assert.NotContains(t, res.HTML, gone)
	}
	assert.Contains(t, res.HTML, longText)
}

func TestClean_PicksDensestCandidate(t *testing.T) {
	t.Parallel()

	in := page(`<div class="intro"><p>Short intro paragraph.</p></div>` +
		`<section class="decision"><p>` + longText + `</p></section>` +
		`<article><p>Another short block.</p></article>`)

	res := Clean(in)
	require.True(t, res.Extracted)
	assert.Contains(t, res.HTML, longText)
	assert.NotContains(t, res.HTML, "Short intro paragraph")
	assert.NotContains(t, res.HTML, "Another short block")
}

func TestClean_PrefersMainLandmark(t *testing.T) {
	t.Parallel()

	outside := strings.Repeat("Unrelated listing text outside main. ", 15)
	inside := longText

	t.Run("main element", func(t *testing.T) {
		t.Parallel()
		res := Clean(page(`<div>` + outside + `</div><main><div><p>` + inside + `</p></div></main>`))
		require.True(t, res.Extracted)
		assert.Contains(t, res.HTML, inside)
		assert.NotContains(t, res.HTML, "Unrelated listing")
	})

	t.Run("role main", func(t *testing.T) {
		t.Parallel()
		res := Clean(page(`<div>` + outside + `</div><div role="Main"><section><p>` + inside + `</p></section></div>`))
		require.True(t, res.Extracted)
		assert.Contains(t, res.HTML, inside)
		assert.NotContains(t, res.HTML, "Unrelated listing")
	})
}

func TestClean_NoCandidatesWrapsRoot(t *testing.T) {
	t.Parallel()

	res := Clean(page(`<h1>Heading</h1>` + longText + `<p>   </p>`))
	require.True(t, res.Extracted)
	assert.Contains(t, res.HTML, `<article data-curated="true"><h1>Heading</h1>`+longText+`</article>`)
}

func TestClean_PrunesEmptyContainers(t *testing.T) {
	t.Parallel()

	res := Clean(page(`<div><p></p><div> <span> </span> </div><p>` + longText + `</p><section><img src="x.png"/></section></div>`))
	require.True(t, res.Extracted)
	assert.Equal(t, `<!DOCTYPE html><html><head><meta charset="utf-8"/><title>Decision ADJ-00012345</title></head>`+
		`<body><article data-curated="true"><p>`+longText+`</p></article></body></html>`, res.HTML)
}

func TestClean_StructuralTagsSurviveKeywords(t *testing.T) {
	t.Parallel()

	in := `<html><head></head><body class="page-with-sidebar"><div><p>` + longText + `</p></div></body></html>`
	res := Clean(in)
	require.True(t, res.Extracted)
	assert.Contains(t, res.HTML, longText)
	assert.NotContains(t, res.HTML, "<title>")
}

func TestNewWithFloor(t *testing.T) {
	t.Parallel()

	in := page(`<div><p>Short decision.</p></div>`)
	res := NewWithFloor(5).Clean(in)
	assert.True(t, res.Extracted)
	assert.Contains(t, res.HTML, "<p>Short decision.</p>")

	empty := NewWithFloor(-1).Clean("")
	assert.True(t, empty.Extracted)
	assert.Contains(t, empty.HTML, `<article data-curated="true"></article>`)
}

func TestMatchesBoilerplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id, class string
		want      bool
	}{
		{"", "breadcrumbs", true},
		{"", "site-header", true},
		{"site_header", "", true},
		{"", "header-site", false},
		{"", "ad-slot", true},
		{"", "load-more", false},
		{"", "advertisement", true},
		{"", "btn share", true},
		{"", "toc-list", true},
		{"", "stock-table", false},
		{"", "sidebar_left", true},
		{"cookieConsent", "", true},
		{"", "skip-link visually-hidden", true},
		{"", "skip links", false},
		{"", "decision-body", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id+"|"+tt.class, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchesBoilerplate(tt.id, tt.class))
		})
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	kws := Keywords()
	assert.Contains(t, kws, "pagination")
	kws[0] = "mutated"
	assert.Equal(t, "breadcrumb", Keywords()[0])
}
