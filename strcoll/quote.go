package strcoll

import "github.com/mailru/easyjson/jwriter"

// quote returns s as a JSON string literal, which the editor side evaluates as a native string.
func quote(s string) string {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.String(s)
	b, _ := w.BuildBytes()
	return string(b)
}
