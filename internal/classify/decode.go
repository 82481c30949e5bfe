package classify

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeHTML converts landing HTML bytes to UTF-8 text. Valid UTF-8 passes
// through. Otherwise the charset comes from the content type, a BOM or a meta
// tag, with windows-1252 as the last resort. It never fails.
func DecodeHTML(b []byte, contentType string) string {
	if utf8.Valid(b) {
		return string(bytes.TrimPrefix(b, utf8BOM))
	}

	enc, _, _ := charset.DetermineEncoding(b, contentType)
	if out, err := enc.NewDecoder().Bytes(b); err == nil {
		return string(out)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("�")))
	}
	return string(out)
}

// DecodeWith decodes b using an explicit WHATWG encoding label such as
// "iso-8859-1" or "shift_jis".
func DecodeWith(b []byte, label string) (string, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", eris.Wrapf(err, "classify: unsupported charset %q", label)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", eris.Wrapf(err, "classify: decode %s", label)
	}
	return string(out), nil
}
