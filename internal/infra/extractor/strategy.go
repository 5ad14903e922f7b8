package extractor

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/infra/htmlutil"
)

// Strategy is the stable identifier recorded against a domain in C4.
type Strategy = entity.ExtractionStrategy

// Memory is C4's read/write surface as seen by the extractor.
type Memory interface {
	LookupPatterns(ctx context.Context, domain string) ([]*entity.ExtractionPattern, error)
	RecordAttempt(ctx context.Context, domain string, strategy Strategy, selector string, success bool, quality float64, elapsed time.Duration) error
	ShouldInvokeAI(ctx context.Context, domain string) (bool, error)
	MarkStable(ctx context.Context, domain string) error
	NeedsRender(ctx context.Context, domain string) (bool, error)
}

// Renderer is C1's headless-browser fetch.
type Renderer interface {
	Render(ctx context.Context, rawURL string, opts RenderOptions) (string, error)
}

// RenderOptions mirrors httpclient.RenderOptions without importing it,
// keeping extractor's dependency surface to the interfaces it needs.
type RenderOptions struct {
	WaitForSelector string
	BudgetMillis    int64
}

// SelectorDiscoverer is C7's AI-assisted selector proposal call.
type SelectorDiscoverer interface {
	DiscoverSelectors(ctx context.Context, domain string, compressedDOM string) ([]string, error)
}

var prioritizedSelectors = []string{
	"[itemprop=articleBody]",
	"main article",
	"article",
	".prose",
	".entry-content",
	".post-content",
	".article__text",
	".article-body",
	".post-body",
	"#content article",
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// tryLearnedSelector runs strategy 1: the best stable pattern C4 knows
// for this domain.
func tryLearnedSelector(doc *goquery.Document, domain string, patterns []*entity.ExtractionPattern) (string, string, bool) {
	for _, p := range patterns {
		if p.Strategy != entity.StrategyLearnedSelector && p.Strategy != entity.StrategyCSSSelectorList {
			continue
		}
		sel := doc.Find(p.SelectorPattern)
		if sel.Length() == 0 {
			continue
		}
		text := htmlutil.VisibleText(sel)
		if ScoreQuality(text).Passed {
			return text, p.SelectorPattern, true
		}
	}
	return "", "", false
}

// tryReadability runs strategy 2 using go-shiori/go-readability, the
// same block-scoring heuristic go-readability ports from Mozilla's
// Readability.js.
func tryReadability(htmlBytes []byte, pageURL string) (string, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(strings.NewReader(string(htmlBytes)), parsed)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(article.Content)
	}
	if !ScoreQuality(text).Passed {
		return text, false
	}
	return text, true
}

// jsonLDArticle is the subset of schema.org Article/NewsArticle/
// BlogPosting fields we care about.
type jsonLDArticle struct {
	Type          interface{} `json:"@type"`
	ArticleBody   string      `json:"articleBody"`
	DatePublished string      `json:"datePublished"`
	Headline      string      `json:"headline"`
}

func jsonLDTypeMatches(raw interface{}) bool {
	wanted := map[string]bool{"NewsArticle": true, "Article": true, "BlogPosting": true}
	switch v := raw.(type) {
	case string:
		return wanted[v]
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok && wanted[s] {
				return true
			}
		}
	}
	return false
}

// tryStructuredData runs strategy 3: JSON-LD, itemprop=articleBody,
// then Open Graph title/description as a last resort.
func tryStructuredData(doc *goquery.Document) (body string, datePublished string, ok bool) {
	var found bool
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var node jsonLDArticle
		if err := json.Unmarshal([]byte(s.Text()), &node); err != nil {
			return true
		}
		if !jsonLDTypeMatches(node.Type) {
			return true
		}
		if node.ArticleBody != "" {
			body = node.ArticleBody
			datePublished = node.DatePublished
			found = true
			return false
		}
		return true
	})
	if found && ScoreQuality(body).Passed {
		return body, datePublished, true
	}

	if sel := doc.Find("[itemprop=articleBody]"); sel.Length() > 0 {
		text := htmlutil.VisibleText(sel)
		if ScoreQuality(text).Passed {
			return text, datePublished, true
		}
	}

	ogDesc, _ := doc.Find(`meta[property="og:description"]`).Attr("content")
	if ScoreQuality(ogDesc).Passed {
		return ogDesc, datePublished, true
	}

	return "", datePublished, false
}

// tryCSSSelectorList runs strategy 4: schema.org microdata, semantic
// HTML5, then common CMS class patterns, in that priority order.
func tryCSSSelectorList(doc *goquery.Document) (string, string, bool) {
	for _, sel := range prioritizedSelectors {
		node := doc.Find(sel)
		if node.Length() == 0 {
			continue
		}
		text := htmlutil.VisibleText(node.First())
		if ScoreQuality(text).Passed {
			return text, sel, true
		}
	}
	return "", "", false
}
