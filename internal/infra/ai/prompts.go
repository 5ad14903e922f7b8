package ai

import (
	"fmt"
	"strings"
)

// promptVersion is bumped whenever a prompt's wording changes, so the
// cache key changes with it and stale cached completions are never
// served against a different prompt contract.
const promptVersion = "v1"

const strictSuffix = "\n\nRespond with a single JSON object and nothing else: no markdown fences, no commentary, no trailing text. Every field listed above is required."

func analysisSystemPrompt() string {
	return "You are a news-processing assistant. You analyze one article at a time and return structured JSON only."
}

func analysisUserPrompt(title, body, url string, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this article and respond with a JSON object with these fields:\n")
	b.WriteString(`{"optimized_title": string, "categories": [{"name": string, "confidence": number 0-1}], "summary": string (2-6 sentences, Russian), "is_advertisement": bool, "ad_confidence": number 0-1, "ad_type": one of "", "product_promotion", "service_promotion", "sponsored_content", "affiliate", "ad_reasoning": string, "ad_markers": [string], "publication_date": string (ISO 8601, omit if unknown)}`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\nBody:\n%s", url, title, body)
	if strict {
		b.WriteString(strictSuffix)
	}
	return b.String()
}

func selectorSystemPrompt() string {
	return "You are a web scraping assistant. You propose CSS selectors that isolate an article's main body text from surrounding chrome."
}

func selectorUserPrompt(domain, compressedDOM string, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n\nGiven this compressed DOM outline, propose up to 5 CSS selectors (most specific first) likely to match the article body element, as a JSON object: {\"selectors\": [string]}.\n\nDOM:\n%s", domain, compressedDOM)
	if strict {
		b.WriteString(strictSuffix)
	}
	return b.String()
}

func categorySummarySystemPrompt() string {
	return "You are a news digest editor. You write a short paragraph summarizing a set of articles in one fixed category."
}

func categorySummaryUserPrompt(category string, briefs []ArticleBrief, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n\nWrite a single paragraph (Russian, 3-5 sentences) summarizing the following articles as one digest entry. Respond as JSON: {\"summary\": string}.\n\nArticles:\n", category)
	for _, a := range briefs {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", a.Title, a.Summary, a.URL)
	}
	if strict {
		b.WriteString(strictSuffix)
	}
	return b.String()
}
