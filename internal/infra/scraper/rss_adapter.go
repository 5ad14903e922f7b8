package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"pulsefeed/internal/domain/entity"
)

// RSSAdapter parses RSS/Atom feeds with gofeed, grounded directly on
// the teacher's RSSFetcher. HTTP transport (retry, circuit breaking,
// SSRF checks) is delegated to C1's Fetcher rather than duplicated
// here, matching C6's role as a pure source-protocol adapter.
type RSSAdapter struct {
	fetcher Fetcher
}

// NewRSSAdapter builds an RSSAdapter over fetcher.
func NewRSSAdapter(fetcher Fetcher) *RSSAdapter {
	return &RSSAdapter{fetcher: fetcher}
}

// FetchNew fetches source.URL and parses every feed item into a
// candidate Article. Published-at falls back to time.Now() when the
// feed entry carries no parseable date, matching gofeed's own fallback.
func (a *RSSAdapter) FetchNew(ctx context.Context, source *entity.Source) ([]*entity.Article, error) {
	resp, err := a.fetcher.Fetch(ctx, source.URL, FetchOptions{AcceptGzip: true, UserAgent: "PulsefeedBot/1.0"})
	if err != nil {
		return nil, fmt.Errorf("rss adapter: fetch %s: %w", source.URL, err)
	}

	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("rss adapter: parse %s: %w", source.URL, err)
	}

	now := time.Now()
	articles := make([]*entity.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		if item.Link == "" || item.Title == "" {
			continue
		}

		articles = append(articles, &entity.Article{
			SourceID:    source.ID,
			Title:       item.Title,
			URL:         item.Link,
			Content:     content,
			Summary:     item.Description,
			PublishedAt: publishedAt,
			FetchedAt:   now,
		})
	}

	return articles, nil
}
