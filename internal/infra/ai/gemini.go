package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"pulsefeed/internal/resilience/circuitbreaker"
	"pulsefeed/internal/resilience/retry"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures the primary provider. Grounded on
// astrophena-tools' internal/api/google/gemini.Client field set, but
// built on a bare net/http.Client rather than that package's unexported
// request helper.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadGeminiConfig reads GEMINI_API_KEY and GEMINI_MODEL, mirroring the
// teacher's LoadClaudeConfig/LoadOpenAIConfig env-driven constructors.
func LoadGeminiConfig() GeminiConfig {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := os.Getenv("GEMINI_API_ENDPOINT")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return GeminiConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Model:   model,
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Gemini is the primary C7 provider: a minimal hand-rolled REST client
// against generateContent, matching the raw-POST shape used by the
// Gemini client in the examples rather than pulling in a full SDK.
type Gemini struct {
	cfg            GeminiConfig
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewGemini builds a Gemini provider from cfg.
func NewGemini(cfg GeminiConfig) *Gemini {
	return &Gemini{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: circuitbreaker.New(circuitbreaker.GeminiAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// Generate calls generateContent with the given system and user prompts
// and returns the first candidate's text, wrapped in circuit breaking
// and exponential backoff like the teacher's Claude/OpenAI summarizers.
func (g *Gemini) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", errors.New("gemini: GEMINI_API_KEY is not set")
	}

	var result string
	retryErr := retry.WithBackoff(ctx, g.retryConfig, func() error {
		cbResult, err := g.circuitBreaker.Execute(func() (interface{}, error) {
			return g.doGenerate(ctx, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("gemini api circuit breaker open, request rejected",
					slog.String("state", g.circuitBreaker.State().String()))
				return fmt.Errorf("gemini api unavailable: circuit breaker open")
			}
			return err
		}
		result = cbResult.(string)
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("gemini generate failed after retries: %w", retryErr)
	}
	return result, nil
}

func (g *Gemini) doGenerate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMIMEType: "application/json",
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return "", &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini api returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini api returned no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
