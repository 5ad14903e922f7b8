package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/domain/entity"
)

// TelegramAdapter scrapes the public t.me/s/<channel> preview page,
// the only way to read a public channel's recent posts without the
// Bot API (which requires the channel to add the bot as admin). It
// reuses C2's goquery idiom from the teacher's webflow.go rather than
// pulling in a Telegram client library, since none of the example
// repos imports one.
type TelegramAdapter struct {
	fetcher Fetcher
}

// NewTelegramAdapter builds a TelegramAdapter over fetcher.
func NewTelegramAdapter(fetcher Fetcher) *TelegramAdapter {
	return &TelegramAdapter{fetcher: fetcher}
}

// FetchNew expects source.Config["channel"] to hold the channel
// username (without the @), and requests https://t.me/s/<channel>.
func (a *TelegramAdapter) FetchNew(ctx context.Context, source *entity.Source) ([]*entity.Article, error) {
	channel := source.Config["channel"]
	if channel == "" {
		return nil, fmt.Errorf("telegram adapter: source %d missing config[channel]", source.ID)
	}

	url := fmt.Sprintf("https://t.me/s/%s", channel)
	resp, err := a.fetcher.Fetch(ctx, url, FetchOptions{UserAgent: "PulsefeedBot/1.0"})
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: fetch %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(newBytesReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: parse %s: %w", url, err)
	}

	now := time.Now()
	var articles []*entity.Article
	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, wrap *goquery.Selection) {
		msg := wrap.Find(".tgme_widget_message")
		postURL, _ := msg.Attr("data-post")
		text := strings.TrimSpace(msg.Find(".tgme_widget_message_text").Text())
		if text == "" {
			return
		}
		publishedAt := now
		if dt, ok := msg.Find("time.time").Attr("datetime"); ok {
			if t, perr := parseISO8601(dt); perr == nil {
				publishedAt = t
			}
		}

		title := text
		if len(title) > 120 {
			title = title[:120]
		}

		articles = append(articles, &entity.Article{
			SourceID:    source.ID,
			Title:       title,
			URL:         "https://t.me/" + strings.TrimPrefix(postURL, "https://t.me/"),
			Content:     text,
			PublishedAt: publishedAt,
			FetchedAt:   now,
		})
	})

	return articles, nil
}

func parseISO8601(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// channelMessageID extracts the trailing numeric id from a t.me post
// path, used by callers that need a stable per-post identifier.
func channelMessageID(postURL string) (int64, bool) {
	parts := strings.Split(postURL, "/")
	if len(parts) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
