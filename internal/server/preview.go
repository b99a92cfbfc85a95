package server

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf16"

	"github.com/a-h/templ"
)

//go:embed static/index.html
var indexHTML string

// texNamePlaceholder is the line in index.html that receives the identifier.
const texNamePlaceholder = "const TEX_NAME = ''"

// EscapeJSString encodes s as a double-quoted JavaScript string literal in
// which every UTF-16 code unit is a \uXXXX escape. Between the quotes the
// output holds only backslashes, 'u' and hex digits, so no identifier can end
// the literal or the enclosing <script> element.
func EscapeJSString(s string) string {
	units := utf16.Encode([]rune(s))

	var b strings.Builder
	b.Grow(len(units)*6 + 2)
	b.WriteByte('"')
	for _, unit := range units {
		fmt.Fprintf(&b, `\u%04x`, unit)
	}
	b.WriteByte('"')

	return b.String()
}

// RenderPreview returns the preview page for the source id.
func RenderPreview(id string) string {
	return strings.Replace(indexHTML, texNamePlaceholder, "const TEX_NAME = "+EscapeJSString(id), 1)
}

// PreviewPage is the preview page as a templ component.
func PreviewPage(id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, RenderPreview(id))
		return err
	})
}

func servePreview(w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(PreviewPage(id), templ.WithContentType("text/html; charset=utf-8")).ServeHTTP(w, r)
}
