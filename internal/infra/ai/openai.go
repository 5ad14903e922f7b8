package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"pulsefeed/internal/resilience/circuitbreaker"
	"pulsefeed/internal/resilience/retry"
)

// OpenAIConfig configures the fallback provider, grounded on the
// teacher's OpenAIConfig/LoadOpenAIConfig shape.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LoadOpenAIConfig reads OPENAI_API_KEY/OPENAI_MODEL.
func LoadOpenAIConfig() OpenAIConfig {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   model,
		Timeout: 30 * time.Second,
	}
}

// OpenAIProvider is the OpenAI-compatible fallback used when Gemini is
// unavailable, the same role SUMMARIZER_TYPE=openai plays in the teacher.
type OpenAIProvider struct {
	cfg            OpenAIConfig
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewOpenAIProvider builds an OpenAIProvider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:            cfg,
		client:         openai.NewClient(cfg.APIKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// Generate issues a chat completion in JSON-object mode and returns the
// first choice's content.
func (o *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if o.cfg.APIKey == "" {
		return "", errors.New("openai: OPENAI_API_KEY is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	var result string
	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doGenerate(ctx, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai api circuit breaker open, request rejected",
					slog.String("state", o.circuitBreaker.State().String()))
				return fmt.Errorf("openai api unavailable: circuit breaker open")
			}
			return err
		}
		result = cbResult.(string)
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("openai generate failed after retries: %w", retryErr)
	}
	return result, nil
}

func (o *OpenAIProvider) doGenerate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode == 408) {
			return "", &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
