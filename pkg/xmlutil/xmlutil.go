// Package xmlutil provides XML escaping for prompt interpolation. Review
// text and labels are injected into XML-delimited prompt templates; escaping
// them prevents user-written review content from breaking out of its tag.
package xmlutil

import "strings"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces characters with special meaning in XML.
func Escape(s string) string {
	return escaper.Replace(s)
}
