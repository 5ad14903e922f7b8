package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/domain/entity"
)

// Extractor runs the six-strategy chain against fetched HTML, consulting
// C4 for learned patterns and stability, and C7/C1 only when cheaper
// strategies fail.
type Extractor struct {
	memory    Memory
	renderer  Renderer
	ai        SelectorDiscoverer
	minLength int
	maxLength int
}

// New builds an Extractor. ai and renderer may be nil, in which case
// strategies 5 and 6 are skipped and the chain fails over to ErrQualityFail.
func New(memory Memory, renderer Renderer, ai SelectorDiscoverer) *Extractor {
	return &Extractor{
		memory:    memory,
		renderer:  renderer,
		ai:        ai,
		minLength: MinContentLength,
		maxLength: MaxContentLength,
	}
}

// Result is the outcome of a successful extraction.
type Result struct {
	Body            string
	PublishedAt     time.Time
	StrategyUsed    entity.ExtractionStrategy
	SelectorUsed    string
	FollowedReadMore bool
}

// Extract runs the strategy chain for pageURL given its already-fetched
// HTML bytes. fetchURL is used to re-fetch the "read more" target and to
// invoke the renderer; callers that only have HTML (e.g. tests) may pass
// a nil fetchAgain and lose that one fallback path.
func (e *Extractor) Extract(ctx context.Context, pageURL string, htmlBytes []byte, fetchAgain func(ctx context.Context, url string) ([]byte, error)) (*Result, error) {
	start := time.Now()
	domain := domainOf(pageURL)

	if len(htmlBytes) == 0 {
		return nil, ErrEmpty
	}

	doc, err := goquery.NewDocumentFromReader(newReader(htmlBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	patterns, _ := e.memory.LookupPatterns(ctx, domain)

	// Strategy 1: learned selector.
	if body, sel, ok := tryLearnedSelector(doc, domain, patterns); ok {
		e.record(ctx, domain, entity.StrategyLearnedSelector, sel, true, time.Since(start))
		return e.finish(doc, body, sel, entity.StrategyLearnedSelector, "")
	}

	// Strategy 2: readability heuristic.
	if body, ok := tryReadability(htmlBytes, pageURL); ok {
		e.record(ctx, domain, entity.StrategyReadability, "", true, time.Since(start))
		return e.finish(doc, body, "", entity.StrategyReadability, "")
	}

	// Strategy 3: structured data.
	if body, datePublished, ok := tryStructuredData(doc); ok {
		e.record(ctx, domain, entity.StrategyStructuredData, "", true, time.Since(start))
		return e.finish(doc, body, "", entity.StrategyStructuredData, datePublished)
	}

	// Strategy 4: prioritized CSS selector list.
	if body, sel, ok := tryCSSSelectorList(doc); ok {
		e.record(ctx, domain, entity.StrategyCSSSelectorList, sel, true, time.Since(start))
		return e.finish(doc, body, sel, entity.StrategyCSSSelectorList, "")
	}

	needsRender, _ := e.memory.NeedsRender(ctx, domain)
	if needsRender && e.renderer != nil {
		if result, err := e.tryRender(ctx, pageURL, domain, start); err == nil {
			return result, nil
		}
	}

	// Strategy 6: AI-assisted selector discovery, only when C4 says the
	// domain is unstable and within AI budget.
	if e.ai != nil {
		invoke, _ := e.memory.ShouldInvokeAI(ctx, domain)
		if invoke {
			if result, err := e.tryAIDiscovery(ctx, doc, domain, start); err == nil {
				return result, nil
			}
		}
	}

	// "Read more" follow-once, per spec.md §4.3, tried last since it
	// requires an extra fetch.
	if fetchAgain != nil {
		if href, ok := ReadMoreLink(doc, pageURL); ok {
			if more, err := fetchAgain(ctx, href); err == nil && len(more) > len(htmlBytes) {
				return e.Extract(ctx, href, more, nil)
			}
		}
	}

	e.record(ctx, domain, entity.StrategyReadability, "", false, time.Since(start))
	return nil, ErrQualityFail
}

func (e *Extractor) tryRender(ctx context.Context, pageURL, domain string, start time.Time) (*Result, error) {
	html, err := e.renderer.Render(ctx, pageURL, RenderOptions{})
	if err != nil {
		slog.Debug("render strategy unavailable", slog.String("domain", domain), slog.Any("error", err))
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(newReader([]byte(html)))
	if err != nil {
		return nil, err
	}
	if body, sel, ok := tryCSSSelectorList(doc); ok {
		e.record(ctx, domain, entity.StrategyHeadlessBrowser, sel, true, time.Since(start))
		return e.finish(doc, body, sel, entity.StrategyHeadlessBrowser, "")
	}
	return nil, ErrQualityFail
}

func (e *Extractor) tryAIDiscovery(ctx context.Context, doc *goquery.Document, domain string, start time.Time) (*Result, error) {
	compressed, err := doc.Html()
	if err != nil {
		return nil, err
	}
	selectors, err := e.ai.DiscoverSelectors(ctx, domain, compressDOM(compressed))
	if err != nil {
		return nil, err
	}
	for _, sel := range selectors {
		node := doc.Find(sel)
		if node.Length() == 0 {
			continue
		}
		body, ok := visibleTextOK(node)
		if !ok {
			continue
		}
		e.record(ctx, domain, entity.StrategyAIDiscovery, sel, true, time.Since(start))
		return e.finish(doc, body, sel, entity.StrategyAIDiscovery, "")
	}
	return nil, ErrQualityFail
}

func (e *Extractor) finish(doc *goquery.Document, body, selector string, strategy entity.ExtractionStrategy, jsonLDDate string) (*Result, error) {
	body = TruncateAtSentence(body, e.maxLength)
	return &Result{
		Body:         body,
		PublishedAt:  PublicationDate(doc, jsonLDDate),
		StrategyUsed: strategy,
		SelectorUsed: selector,
	}, nil
}

func (e *Extractor) record(ctx context.Context, domain string, strategy entity.ExtractionStrategy, selector string, success bool, elapsed time.Duration) {
	quality := 0.0
	if success {
		quality = 1.0
	}
	if err := e.memory.RecordAttempt(ctx, domain, strategy, selector, success, quality, elapsed); err != nil {
		slog.Warn("failed to record extraction attempt", slog.String("domain", domain), slog.Any("error", err))
	}
}
