package ai

import "context"

// Provider is one LLM backend capable of a single-turn JSON completion.
// Gemini and the OpenAI-compatible fallback both implement it.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
