// Package classify maps declared content types and file names to a canonical
// kind and extension, and hashes stored bytes.
package classify

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind is the canonical file kind used to pick a curation strategy.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDoc   Kind = "doc"
	KindDocx  Kind = "docx"
	KindHTML  Kind = "html"
	KindOther Kind = "other"
)

// IsHTML reports whether files of this kind go through the content extractor.
func (k Kind) IsHTML() bool { return k == KindHTML }

// Class is a classification result.
type Class struct {
	Kind Kind
	Ext  string
}

// DefaultExt is used for unrecognized files without a usable extension.
const DefaultExt = ".bin"

// contentTypeRules are matched as substrings of the lowercased content type.
var contentTypeRules = []struct {
	needle string
	class  Class
}{
	{"pdf", Class{KindPDF, ".pdf"}},
	{"officedocument.wordprocessingml.document", Class{KindDocx, ".docx"}},
	{"msword", Class{KindDoc, ".doc"}},
	{"html", Class{KindHTML, ".html"}},
}

// suffixRules are matched against the lowercased path; .docx precedes .doc.
var suffixRules = []struct {
	suffix string
	class  Class
}{
	{".pdf", Class{KindPDF, ".pdf"}},
	{".docx", Class{KindDocx, ".docx"}},
	{".doc", Class{KindDoc, ".doc"}},
	{".html", Class{KindHTML, ".html"}},
	{".htm", Class{KindHTML, ".html"}},
}

var safeExtRe = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Classify picks a kind by declared content type first, then the source URL
// suffix, then the landing file suffix. Anything else is KindOther, keeping
// the landing file's extension when it is short and alphanumeric.
func Classify(contentType, sourceURL, localPath string) Class {
	if c, ok := byContentType(contentType); ok {
		return c
	}
	if c, ok := bySuffix(urlPath(sourceURL)); ok {
		return c
	}
	if c, ok := bySuffix(localPath); ok {
		return c
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	if !safeExtRe.MatchString(ext) {
		ext = DefaultExt
	}
	return Class{Kind: KindOther, Ext: ext}
}

func byContentType(ct string) (Class, bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return Class{}, false
	}
	// Parameters such as charset=… must not match a rule.
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	for _, r := range contentTypeRules {
		if strings.Contains(ct, r.needle) {
			return r.class, true
		}
	}
	return Class{}, false
}

func bySuffix(p string) (Class, bool) {
	p = strings.ToLower(p)
	if p == "" {
		return Class{}, false
	}
	for _, r := range suffixRules {
		if strings.HasSuffix(p, r.suffix) {
			return r.class, true
		}
	}
	return Class{}, false
}

func urlPath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return path.Clean(raw)
	}
	return u.Path
}

// ContentTypeHint returns the MIME type recorded for a curated file of kind k.
// The declared type wins when present.
func ContentTypeHint(k Kind, declared string) string {
	if k.IsHTML() {
		return "text/html"
	}
	if declared != "" {
		return declared
	}
	switch k {
	case KindPDF:
		return "application/pdf"
	case KindDoc:
		return "application/msword"
	case KindDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
