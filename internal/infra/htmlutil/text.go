package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var strippedTags = []string{"script", "style", "nav", "aside", "figure", "noscript", "iframe"}

// preservedInline wraps emphasis markers around semantically meaningful
// inline elements so downstream text processing (dedup hashing, quality
// scoring) does not collapse `strong`/`em`/`a` into indistinguishable
// plain text.
var preservedInline = map[string]string{
	"strong": "**",
	"b":      "**",
	"em":     "_",
	"i":      "_",
}

// VisibleText extracts visible text from sel, stripping non-content
// tags while preserving emphasis markers and link text.
func VisibleText(sel *goquery.Selection) string {
	clone := sel.Clone()
	for _, tag := range strippedTags {
		clone.Find(tag).Remove()
	}

	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			tag := goquery.NodeName(c)
			if marker, ok := preservedInline[tag]; ok {
				b.WriteString(marker)
				walk(c)
				b.WriteString(marker)
				return
			}
			if tag == "a" {
				b.WriteString(c.Text())
				return
			}
			walk(c)
		})
	}
	walk(clone)

	return strings.TrimSpace(collapseWhitespace(b.String()))
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
