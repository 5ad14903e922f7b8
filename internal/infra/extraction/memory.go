// Package extraction implements C4, the Extraction Memory: a per-domain
// learning table plus a sliding-window stability tracker for C3's
// content extractor. Writes flow through C9's persistence queue; reads
// are served from a bounded in-process cache with 5-minute staleness.
package extraction

import (
	"context"
	"sync"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
	"pulsefeed/pkg/ratelimit"
)

const (
	cacheStaleness  = 5 * time.Minute
	cooldown        = 6 * time.Hour
	dailyAIBudget   = 200
)

type cacheEntry struct {
	patterns  []*entity.ExtractionPattern
	stability *entity.DomainStability
	fetchedAt time.Time
}

// Memory implements the extractor.Memory interface over an
// ExtractionRepository, adding a bounded per-domain read cache.
type Memory struct {
	repo  repository.ExtractionRepository
	clock ratelimit.Clock

	mu      sync.Mutex
	cache   map[string]*cacheEntry
	maxKeys int

	aiInvocationsToday int
	aiDayStamp         string
}

// New builds a Memory backed by repo. clock defaults to the system
// clock; tests may substitute a fake one.
func New(repo repository.ExtractionRepository, clock ratelimit.Clock) *Memory {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	return &Memory{
		repo:    repo,
		clock:   clock,
		cache:   make(map[string]*cacheEntry),
		maxKeys: 5000,
	}
}

func (m *Memory) loadLocked(ctx context.Context, domain string) (*cacheEntry, error) {
	if e, ok := m.cache[domain]; ok && m.clock.Now().Sub(e.fetchedAt) < cacheStaleness {
		return e, nil
	}

	patterns, err := m.repo.LookupPatterns(ctx, domain)
	if err != nil {
		return nil, err
	}
	stability, err := m.repo.GetStability(ctx, domain)
	if err != nil {
		stability = &entity.DomainStability{Domain: domain, AdaptiveTimeout: 10 * time.Second}
	}

	e := &cacheEntry{patterns: patterns, stability: stability, fetchedAt: m.clock.Now()}
	if len(m.cache) >= m.maxKeys {
		m.evictOneLocked()
	}
	m.cache[domain] = e
	return e, nil
}

func (m *Memory) evictOneLocked() {
	for k := range m.cache {
		delete(m.cache, k)
		return
	}
}

// LookupPatterns returns patterns ordered (is_stable DESC, success_rate
// DESC), per spec.md §4.4.
func (m *Memory) LookupPatterns(ctx context.Context, domain string) ([]*entity.ExtractionPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.loadLocked(ctx, domain)
	if err != nil {
		return nil, err
	}
	return e.patterns, nil
}

// RecordAttempt updates success/failure counts for (domain, strategy,
// selector) and invalidates the domain's cache entry so the next lookup
// reflects the new counts.
func (m *Memory) RecordAttempt(ctx context.Context, domain string, strategy entity.ExtractionStrategy, selector string, success bool, quality float64, elapsed time.Duration) error {
	pattern := findOrNewPattern(m.cachedPatterns(domain), domain, strategy, selector)
	if success {
		pattern.SuccessCount++
	} else {
		pattern.FailureCount++
	}
	total := float64(pattern.SuccessCount + pattern.FailureCount)
	if total > 0 {
		pattern.QualityScoreAvg = ((pattern.QualityScoreAvg * (total - 1)) + quality) / total
	}
	pattern.UpdatedAt = m.clock.Now()

	if err := m.repo.UpsertPattern(ctx, pattern); err != nil {
		return err
	}

	if err := m.updateStability(ctx, domain, success); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cache, domain)
	m.mu.Unlock()
	return nil
}

func (m *Memory) cachedPatterns(domain string) []*entity.ExtractionPattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache[domain]; ok {
		return e.patterns
	}
	return nil
}

func findOrNewPattern(existing []*entity.ExtractionPattern, domain string, strategy entity.ExtractionStrategy, selector string) *entity.ExtractionPattern {
	for _, p := range existing {
		if p.Strategy == strategy && p.SelectorPattern == selector {
			return p
		}
	}
	return &entity.ExtractionPattern{
		Domain:          domain,
		SelectorPattern: selector,
		Strategy:        strategy,
		DiscoveredBy:    entity.DiscoveredHeuristic,
	}
}

// updateStability implements the stability invariant in spec.md §4.4:
// stable iff success_rate_7d >= 80% and consecutive_successes >= 5;
// flips back to unstable on two consecutive failures with no
// intervening success.
func (m *Memory) updateStability(ctx context.Context, domain string, success bool) error {
	stability, err := m.repo.GetStability(ctx, domain)
	if err != nil || stability == nil {
		stability = &entity.DomainStability{Domain: domain, AdaptiveTimeout: 10 * time.Second}
	}

	if success {
		stability.ConsecutiveSuccesses++
		stability.ConsecutiveFailures = 0
		stability.AdaptiveTimeout = shrinkTimeout(stability.AdaptiveTimeout)
	} else {
		stability.ConsecutiveFailures++
		stability.ConsecutiveSuccesses = 0
		stability.AdaptiveTimeout = growTimeout(stability.AdaptiveTimeout)
		if stability.IsStable && stability.ConsecutiveFailures >= 2 {
			stability.IsStable = false
		}
	}

	if !stability.IsStable &&
		stability.SuccessRate7d >= entity.DefaultStabilityThreshold &&
		stability.ConsecutiveSuccesses >= entity.DefaultStabilityStreak {
		stability.IsStable = true
	}

	stability.UpdatedAt = m.clock.Now()
	return m.repo.UpsertStability(ctx, stability)
}

const (
	minAdaptiveTimeout = 5 * time.Second
	maxAdaptiveTimeout = 60 * time.Second
)

func growTimeout(d time.Duration) time.Duration {
	next := d + 5*time.Second
	if next > maxAdaptiveTimeout {
		return maxAdaptiveTimeout
	}
	return next
}

func shrinkTimeout(d time.Duration) time.Duration {
	next := d - 2*time.Second
	if next < minAdaptiveTimeout {
		return minAdaptiveTimeout
	}
	return next
}

// ShouldInvokeAI implements spec.md §4.4's AI-invocation gate.
func (m *Memory) ShouldInvokeAI(ctx context.Context, domain string) (bool, error) {
	stability, err := m.repo.GetStability(ctx, domain)
	if err != nil || stability == nil {
		return false, err
	}
	if stability.IsStable {
		return false, nil
	}
	if stability.ConsecutiveFailures < entity.DefaultFailureThreshold {
		return false, nil
	}
	if stability.LastAIAnalysis != nil && m.clock.Now().Sub(*stability.LastAIAnalysis) < cooldown {
		return false, nil
	}
	return m.withinDailyBudget(), nil
}

func (m *Memory) withinDailyBudget() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := m.clock.Now().Format("2006-01-02")
	if m.aiDayStamp != today {
		m.aiDayStamp = today
		m.aiInvocationsToday = 0
	}
	if m.aiInvocationsToday >= dailyAIBudget {
		return false
	}
	m.aiInvocationsToday++
	return true
}

// MarkStable forces the stability invariant, used after an operator
// manually confirms a newly-discovered selector is reliable.
func (m *Memory) MarkStable(ctx context.Context, domain string) error {
	stability, err := m.repo.GetStability(ctx, domain)
	if err != nil || stability == nil {
		stability = &entity.DomainStability{Domain: domain}
	}
	stability.IsStable = true
	stability.UpdatedAt = m.clock.Now()
	return m.repo.UpsertStability(ctx, stability)
}

// NeedsRender reports whether C3 should try the headless-browser
// strategy for domain before falling through to AI discovery.
func (m *Memory) NeedsRender(ctx context.Context, domain string) (bool, error) {
	stability, err := m.repo.GetStability(ctx, domain)
	if err != nil || stability == nil {
		return false, err
	}
	return stability.NeedsReanalysis, nil
}
