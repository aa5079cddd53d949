// Package sanitize wraps untrusted external content (email bodies, API
// responses) so a downstream LM cannot confuse it with trusted instructions,
// per spec §4.10.
package sanitize

import "strings"

const (
	openMarker  = "--- BEGIN UNTRUSTED EXTERNAL CONTENT ---"
	closeMarker = "--- END UNTRUSTED EXTERNAL CONTENT ---"
)

// Content HTML-escapes `<` and `>` in s and wraps it between the untrusted
// content markers exactly once.
func Content(s string) string {
	escaped := escapeAngleBrackets(s)
	var b strings.Builder
	b.WriteString(openMarker)
	b.WriteByte('\n')
	b.WriteString(escaped)
	b.WriteByte('\n')
	b.WriteString(closeMarker)
	return b.String()
}

// Metadata escapes angle brackets but preserves single-line content (no
// marker wrapping), for contexts like filenames or header values that must
// stay on one line.
func Metadata(s string) string {
	single := strings.ReplaceAll(s, "\n", " ")
	return escapeAngleBrackets(single)
}

func escapeAngleBrackets(s string) string {
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
