package extractor

import (
	"bytes"
	"io"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/infra/htmlutil"
)

func newReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func visibleTextOK(sel *goquery.Selection) (string, bool) {
	text := htmlutil.VisibleText(sel)
	return text, ScoreQuality(text).Passed
}

// compressDOM trims an HTML document down to a size an AI selector
// proposal call can reasonably consume. It keeps structural tags and
// drops script/style bodies, matching the "compressed DOM" spec.md §4.3
// refers to without mandating a specific algorithm.
func compressDOM(html string) string {
	const maxLen = 8000
	if len(html) <= maxLen {
		return html
	}
	return html[:maxLen]
}
