package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TelegraphConfig configures the Telegraph digest publisher.
type TelegraphConfig struct {
	Enabled     bool
	AccessToken string
	AuthorName  string
	Timeout     time.Duration
}

// TelegraphPublisher pushes an assembled digest as one or more Telegraph
// pages, splitting oversized content into pages with a generated table of
// contents (spec §6) and returning the canonical (first) page URL.
type TelegraphPublisher struct {
	config      TelegraphConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	apiBase     string
}

// telegraphMaxContentBytes is a conservative margin under Telegraph's
// documented 64 KB content-field limit, leaving room for JSON structure
// overhead (tags, attrs) around the raw text.
const telegraphMaxContentBytes = 55000

func NewTelegraphPublisher(config TelegraphConfig) *TelegraphPublisher {
	return &TelegraphPublisher{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1.0, 3),
		apiBase:     "https://api.telegra.ph",
	}
}

type telegraphCreatePageResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	} `json:"result"`
}

func textNode(s string) any { return s }

func elementNode(tag string, attrs map[string]string, children ...any) map[string]any {
	m := map[string]any{"tag": tag}
	if len(attrs) > 0 {
		m["attrs"] = attrs
	}
	if len(children) > 0 {
		m["children"] = children
	}
	return m
}

func blocksToNodes(blocks []Block) []any {
	nodes := make([]any, 0, len(blocks)*2)
	for _, b := range blocks {
		if b.Heading != "" {
			nodes = append(nodes, elementNode("h3", nil, textNode(b.Heading)))
		}
		nodes = append(nodes, elementNode("p", nil, textNode(b.Text)))
	}
	return nodes
}

// paginateNodes packs nodes into pages no larger than maxBytes of encoded
// JSON each. A single node that alone exceeds maxBytes still gets its own
// page rather than being dropped.
func paginateNodes(nodes []any, maxBytes int) [][]any {
	var pages [][]any
	var current []any
	currentSize := 2 // "[]"

	for _, n := range nodes {
		encoded, err := json.Marshal(n)
		size := len(encoded) + 1
		if err != nil {
			continue
		}

		if len(current) > 0 && currentSize+size > maxBytes {
			pages = append(pages, current)
			current = nil
			currentSize = 2
		}
		current = append(current, n)
		currentSize += size
	}
	if len(current) > 0 {
		pages = append(pages, current)
	}
	if len(pages) == 0 {
		pages = [][]any{{}}
	}
	return pages
}

func buildTOC(urls []string) []any {
	items := make([]any, 0, len(urls))
	for i, u := range urls {
		items = append(items, elementNode("li", nil, elementNode("a", map[string]string{"href": u}, textNode(fmt.Sprintf("Part %d", i+2)))))
	}
	return []any{
		elementNode("p", nil, textNode("Continued:")),
		elementNode("ul", nil, items...),
	}
}

// PublishDigest implements DigestPublisher.
func (t *TelegraphPublisher) PublishDigest(ctx context.Context, title string, blocks []Block) (string, error) {
	pages := paginateNodes(blocksToNodes(blocks), telegraphMaxContentBytes)

	if len(pages) == 1 {
		_, pageURL, err := t.createPageWithRetry(ctx, title, pages[0])
		return pageURL, err
	}

	// Later pages are created first so their URLs are known when the
	// canonical first page's table of contents is built.
	continuationURLs := make([]string, 0, len(pages)-1)
	for i := 1; i < len(pages); i++ {
		pageTitle := fmt.Sprintf("%s (%d/%d)", title, i+1, len(pages))
		_, pageURL, err := t.createPageWithRetry(ctx, pageTitle, pages[i])
		if err != nil {
			return "", fmt.Errorf("telegraph: page %d/%d: %w", i+1, len(pages), err)
		}
		continuationURLs = append(continuationURLs, pageURL)
	}

	firstPageContent := append(buildTOC(continuationURLs), pages[0]...)
	_, canonicalURL, err := t.createPageWithRetry(ctx, title, firstPageContent)
	if err != nil {
		return "", fmt.Errorf("telegraph: page 1/%d: %w", len(pages), err)
	}
	return canonicalURL, nil
}

func (t *TelegraphPublisher) createPage(ctx context.Context, title string, content []any) (path, pageURL string, err error) {
	encoded, err := json.Marshal(content)
	if err != nil {
		return "", "", fmt.Errorf("marshal content: %w", err)
	}

	form := url.Values{
		"access_token": {t.config.AccessToken},
		"title":        {title},
		"author_name":  {t.config.AuthorName},
		"content":      {string(encoded)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/createPage", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	var parsed telegraphCreatePageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("decode telegraph response: %w", err)
	}

	if !parsed.OK {
		if retryAfter, ok := parseFloodWait(parsed.Error); ok {
			return "", "", &RateLimitError{Message: "Telegraph flood control: " + parsed.Error, RetryAfter: retryAfter}
		}
		return "", "", &ClientError{StatusCode: resp.StatusCode, Message: "Telegraph API error: " + parsed.Error}
	}
	if resp.StatusCode >= 500 {
		return "", "", &ServerError{StatusCode: resp.StatusCode, Message: "Telegraph API server error"}
	}

	return parsed.Result.Path, parsed.Result.URL, nil
}

// parseFloodWait recognizes Telegraph's "FLOOD_WAIT_<seconds>" error code.
func parseFloodWait(errCode string) (time.Duration, bool) {
	const prefix = "FLOOD_WAIT_"
	if !strings.HasPrefix(errCode, prefix) {
		return 0, false
	}
	seconds, err := strconv.Atoi(strings.TrimPrefix(errCode, prefix))
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func (t *TelegraphPublisher) createPageWithRetry(ctx context.Context, title string, content []any) (path, pageURL string, err error) {
	const (
		maxAttempts = 3
		baseDelay   = 2 * time.Second
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := t.rateLimiter.Allow(ctx); err != nil {
			return "", "", fmt.Errorf("rate limiter error: %w", err)
		}

		path, pageURL, err := t.createPage(ctx, title, content)
		if err == nil {
			slog.Info("Telegraph page created", slog.String("title", title), slog.String("url", pageURL), slog.Int("attempt", attempt))
			return path, pageURL, nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("Telegraph flood control hit, backing off",
				slog.String("title", title), slog.Duration("retry_after", rateLimitErr.RetryAfter))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return "", "", fmt.Errorf("context canceled during flood-control backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			return "", "", err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return "", "", fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}
	return "", "", fmt.Errorf("telegraph createPage failed after %d attempts: %w", maxAttempts, lastErr)
}
