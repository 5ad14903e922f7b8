package httpclient

import (
	"context"
	"fmt"
	"time"
)

// RenderOptions configures a headless-browser fetch (spec.md §4.1).
type RenderOptions struct {
	WaitForSelector string
	BudgetMillis    int64
}

// Render is called only by C3's strategy 5 for domains that need
// JavaScript execution to produce content. No headless-browser library
// appears anywhere in the retrieved corpus (no chromedp, no Playwright
// binding, nothing under go.mod of any example repo), so this
// implementation always fails with ErrNoRenderer; C3 treats that
// failure the same as an exhausted render budget and falls through to
// its remaining strategies.
func (f *Fetcher) Render(ctx context.Context, rawURL string, opts RenderOptions) (string, error) {
	budget := f.cfg.RenderBudget
	if opts.BudgetMillis > 0 {
		budget = time.Duration(opts.BudgetMillis) * time.Millisecond
	}
	_, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return "", fmt.Errorf("%w: headless rendering requires a browser driver not available to this fetcher", ErrNoRenderer)
}
