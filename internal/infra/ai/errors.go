package ai

import "errors"

var (
	// ErrAllProvidersFailed is returned when the primary and fallback
	// providers both fail a call after their own retries.
	ErrAllProvidersFailed = errors.New("ai: all providers failed")

	// ErrInvalidResponse is returned when a provider's response never
	// parses into the expected schema, even after stricter-prompt retries.
	ErrInvalidResponse = errors.New("ai: response did not match schema")

	// ErrRateLimitWait is returned when the caller's context expires
	// while waiting for the global token bucket.
	ErrRateLimitWait = errors.New("ai: rate limiter wait aborted")

	// ErrNoProvider is returned when a Client is constructed with neither
	// a Gemini nor an OpenAI-compatible provider configured.
	ErrNoProvider = errors.New("ai: no provider configured")
)
