// Package sanitize strips markup from free-text fields before they are stored.
package sanitize

import (
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", "\"",
	"&#39;", "'",
)

// Text removes HTML tags and trims surrounding whitespace. Entities are
// decoded and the result is stripped again so encoded tags do not survive.
func Text(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// List sanitizes every entry and drops the ones left empty.
func List(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := Text(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
