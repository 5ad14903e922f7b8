package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TelegramConfig configures the Telegram digest publisher.
type TelegramConfig struct {
	Enabled bool
	// BotToken authenticates calls to api.telegram.org/bot<token>/...
	BotToken string
	// ChatID is the default destination chat for digests.
	ChatID string
	Timeout time.Duration
}

// TelegramPublisher pushes assembled digests to a Telegram chat via the Bot
// API, splitting oversized messages at paragraph boundaries (spec §6: a
// message may not exceed 4096 characters).
type TelegramPublisher struct {
	config      TelegramConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

const telegramMaxMessageLength = 4096

// NewTelegramPublisher builds a TelegramPublisher. The Bot API's documented
// limit is ~30 messages/second across all chats; a conservative 1 req/s
// with a burst of 3 keeps a single digest run well under that.
func NewTelegramPublisher(config TelegramConfig) *TelegramPublisher {
	return &TelegramPublisher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 3),
	}
}

type telegramSendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// renderDigestHTML flattens title and blocks into Telegram's accepted HTML
// subset (b, i, a href); anything beyond that subset is not escaped further
// since callers are expected to pass plain text or that subset only.
func renderDigestHTML(title string, blocks []Block) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("<b>")
		sb.WriteString(title)
		sb.WriteString("</b>\n\n")
	}
	for i, b := range blocks {
		if b.Heading != "" {
			sb.WriteString("<b>")
			sb.WriteString(b.Heading)
			sb.WriteString("</b>\n")
		}
		sb.WriteString(b.Text)
		if i < len(blocks)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// PublishDigest implements DigestPublisher. It sends one message per chunk
// after splitting at paragraph boundaries, and returns the last message ID.
func (t *TelegramPublisher) PublishDigest(ctx context.Context, title string, blocks []Block) (string, error) {
	text := renderDigestHTML(title, blocks)
	chunks := splitAtParagraphBoundary(text, telegramMaxMessageLength)

	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	var lastMessageID int64
	for i, chunk := range chunks {
		id, err := t.sendMessageWithRetry(ctx, chunk)
		if err != nil {
			return strconv.FormatInt(lastMessageID, 10), fmt.Errorf("telegram: part %d/%d: %w", i+1, len(chunks), err)
		}
		lastMessageID = id
	}
	return strconv.FormatInt(lastMessageID, 10), nil
}

func (t *TelegramPublisher) sendMessage(ctx context.Context, text string) (int64, error) {
	payload := map[string]any{
		"chat_id":                  t.config.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	var parsed telegramSendMessageResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests || parsed.ErrorCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if parsed.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		return 0, &RateLimitError{Message: "Telegram rate limit exceeded: " + parsed.Description, RetryAfter: retryAfter}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return 0, &ClientError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Telegram API client error: %s", string(respBody))}
	}
	if resp.StatusCode >= 500 {
		return 0, &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Telegram API server error: %s", string(respBody))}
	}
	if !parsed.OK {
		return 0, fmt.Errorf("telegram API returned ok=false: %s", parsed.Description)
	}
	return parsed.Result.MessageID, nil
}

func (t *TelegramPublisher) sendMessageWithRetry(ctx context.Context, text string) (int64, error) {
	const (
		maxAttempts = 3
		baseDelay   = 2 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := t.rateLimiter.Allow(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter error: %w", err)
		}

		id, err := t.sendMessage(ctx, text)
		if err == nil {
			slog.Info("Telegram message sent", slog.String("request_id", requestID), slog.Int("attempt", attempt))
			return id, nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("Telegram rate limit hit, backing off",
				slog.String("request_id", requestID), slog.Duration("retry_after", rateLimitErr.RetryAfter))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return 0, fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			return 0, err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return 0, fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}
	return 0, fmt.Errorf("telegram sendMessage failed after %d attempts: %w", maxAttempts, lastErr)
}
