package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"pulsefeed/internal/domain/entity"
)

// GenericAdapter is the fallback for SourceTypeGeneric and any
// unrecognized type: it treats source.URL as a single landing page and
// runs Readability against it directly, yielding at most one candidate
// article per fetch. Sources that publish a real feed or listing page
// should use SourceTypeRSS or SourceTypeCustom instead.
type GenericAdapter struct {
	fetcher Fetcher
}

// NewGenericAdapter builds a GenericAdapter. fetcher may be nil only in
// tests that never call FetchNew.
func NewGenericAdapter(fetcher Fetcher) *GenericAdapter {
	return &GenericAdapter{fetcher: fetcher}
}

// FetchNew fetches source.URL once and extracts a single article with
// go-readability, matching the teacher's use of Readability as a
// last-resort content extractor.
func (a *GenericAdapter) FetchNew(ctx context.Context, source *entity.Source) ([]*entity.Article, error) {
	resp, err := a.fetcher.Fetch(ctx, source.URL, FetchOptions{UserAgent: "PulsefeedBot/1.0"})
	if err != nil {
		return nil, fmt.Errorf("generic adapter: fetch %s: %w", source.URL, err)
	}

	parsedURL, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("generic adapter: parse url %s: %w", source.URL, err)
	}

	article, err := readability.FromReader(newBytesReader(resp.Body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("generic adapter: readability %s: %w", source.URL, err)
	}
	if article.TextContent == "" || article.Title == "" {
		return nil, nil
	}

	now := time.Now()
	publishedAt := now
	if article.PublishedTime != nil {
		publishedAt = *article.PublishedTime
	}

	return []*entity.Article{{
		SourceID:    source.ID,
		Title:       article.Title,
		URL:         source.URL,
		Content:     article.TextContent,
		Summary:     article.Excerpt,
		PublishedAt: publishedAt,
		FetchedAt:   now,
	}}, nil
}
