// Package ai implements C7, the AI Client: a rate-limited, cached,
// dual-provider wrapper around structured LLM calls. Gemini is the
// primary provider; an OpenAI-compatible backend is the fallback when
// Gemini is unavailable or exhausted, mirroring the teacher's
// SUMMARIZER_TYPE=claude/openai provider switch.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pulsefeed/pkg/ratelimit"
)

const maxParseAttempts = 3

// Client is C7's entry point, implementing extractor.SelectorDiscoverer
// so C3 can invoke AI-assisted selector discovery directly.
type Client struct {
	primary  Provider
	fallback Provider

	bucket *TokenBucket
	cache  *responseCache
}

// New builds a Client. fallback may be nil if no OpenAI-compatible
// backend is configured; primary must not be nil.
func New(primary, fallback Provider, bucket *TokenBucket, clock ratelimit.Clock) (*Client, error) {
	if primary == nil {
		return nil, ErrNoProvider
	}
	if bucket == nil {
		bucket = NewTokenBucket(defaultRPS)
	}
	return &Client{
		primary:  primary,
		fallback: fallback,
		bucket:   bucket,
		cache:    newResponseCache(clock),
	}, nil
}

// AnalyzeArticleComplete runs the unified per-article analysis call.
func (c *Client) AnalyzeArticleComplete(ctx context.Context, title, body, url string) (*UnifiedAnalysis, error) {
	key := cacheKey("analyze_article_complete", title, body, url)
	raw, err := c.completeJSON(ctx, key, analysisSystemPrompt(), func(strict bool) string {
		return analysisUserPrompt(title, body, url, strict)
	}, validateAnalysis)
	if err != nil {
		return nil, err
	}

	var analysis UnifiedAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &analysis, nil
}

// DiscoverSelectors runs C3 strategy 6's AI selector discovery call
// (spec.md §4.7's extract_selectors). It implements
// extractor.SelectorDiscoverer.
func (c *Client) DiscoverSelectors(ctx context.Context, domain, compressedDOM string) ([]string, error) {
	key := cacheKey("extract_selectors", domain, compressedDOM)
	raw, err := c.completeJSON(ctx, key, selectorSystemPrompt(), func(strict bool) string {
		return selectorUserPrompt(domain, compressedDOM, strict)
	}, validateSelectors)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Selectors []string `json:"selectors"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return parsed.Selectors, nil
}

// CategorySummary composes a digest paragraph for one fixed category
// from its day's article briefs.
func (c *Client) CategorySummary(ctx context.Context, category string, briefs []ArticleBrief) (string, error) {
	inputs := make([]string, 0, len(briefs)+1)
	inputs = append(inputs, category)
	for _, b := range briefs {
		inputs = append(inputs, b.Title, b.URL)
	}
	key := cacheKey("category_summary", inputs...)
	raw, err := c.completeJSON(ctx, key, categorySummarySystemPrompt(), func(strict bool) string {
		return categorySummaryUserPrompt(category, briefs, strict)
	}, validateSummary)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return parsed.Summary, nil
}

// completeJSON runs the rate-limit → cache → provider → validate cycle.
// A validation failure retries with an increasingly strict prompt
// (spec.md §4.7: "missing required fields cause a retry with a stricter
// prompt"), independent of the transport-level retry each Provider
// already performs internally.
func (c *Client) completeJSON(ctx context.Context, key, systemPrompt string, buildUser func(strict bool) string, validate func(string) error) (string, error) {
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		if err := c.bucket.Wait(ctx); err != nil {
			return "", err
		}

		strict := attempt > 1
		userPrompt := buildUser(strict)
		raw, err := c.generateFromProviders(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			continue
		}

		cleaned := stripCodeFence(raw)
		if err := validate(cleaned); err != nil {
			slog.Warn("ai response failed validation, retrying with stricter prompt",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			lastErr = fmt.Errorf("%w: %w", ErrInvalidResponse, err)
			continue
		}

		c.cache.set(key, cleaned)
		return cleaned, nil
	}

	return "", fmt.Errorf("ai: giving up after %d attempts: %w", maxParseAttempts, lastErr)
}

func (c *Client) generateFromProviders(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	raw, err := c.primary.Generate(ctx, systemPrompt, userPrompt)
	if err == nil {
		return raw, nil
	}
	slog.Warn("primary ai provider failed", slog.String("provider", c.primary.Name()), slog.String("error", err.Error()))

	if c.fallback == nil {
		return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, err)
	}

	raw, fallbackErr := c.fallback.Generate(ctx, systemPrompt, userPrompt)
	if fallbackErr != nil {
		slog.Warn("fallback ai provider failed", slog.String("provider", c.fallback.Name()), slog.String("error", fallbackErr.Error()))
		return "", fmt.Errorf("%w: primary=%v fallback=%v", ErrAllProvidersFailed, err, fallbackErr)
	}
	return raw, nil
}

// stripCodeFence removes a leading/trailing ```json ... ``` fence some
// providers wrap structured output in despite being asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func validateAnalysis(raw string) error {
	var a UnifiedAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return err
	}
	if a.Summary == "" {
		return errors.New("missing required field: summary")
	}
	return nil
}

func validateSelectors(raw string) error {
	var parsed struct {
		Selectors []string `json:"selectors"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return err
	}
	if len(parsed.Selectors) == 0 {
		return errors.New("missing required field: selectors")
	}
	return nil
}

func validateSummary(raw string) error {
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return err
	}
	if parsed.Summary == "" {
		return errors.New("missing required field: summary")
	}
	return nil
}
