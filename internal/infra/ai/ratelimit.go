package ai

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

const defaultRPS = 3.0

// TokenBucket is the process-wide limiter every C7 call passes through,
// generalizing pkg/ratelimit's RateLimitStore/Clock abstraction: the
// algorithm here is golang.org/x/time/rate.Limiter rather than the
// sliding-window store, since a single in-process bucket needs no
// external store.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket builds a TokenBucket allowing rps sustained requests per
// second. Burst is fixed at 1: any larger burst lets more than rps calls
// land within a single one-second window once the bucket has idled, which
// breaks the per-window rate ceiling callers rely on.
func NewTokenBucket(rps float64) *TokenBucket {
	if rps <= 0 {
		rps = defaultRPS
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// LoadRPSFromEnv reads AI_RATE_LIMIT_RPS, falling back to defaultRPS.
func LoadRPSFromEnv() float64 {
	v := os.Getenv("AI_RATE_LIMIT_RPS")
	if v == "" {
		return defaultRPS
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 {
		return defaultRPS
	}
	return parsed
}

// Wait suspends the caller until a token is available or ctx is done.
// Retries go through the same bucket as first attempts, so the limit is
// honored under retry per spec.
func (b *TokenBucket) Wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimitWait, err)
	}
	return nil
}
