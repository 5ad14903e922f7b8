package filter

import (
	"context"
	"sync"
	"time"

	"pulsefeed/pkg/ratelimit"
)

const (
	defaultWindow   = 24 * time.Hour
	sweepEveryWrite = 500 // amortize expiry sweeps instead of scanning on every Remember
)

// RecentHashes is the production RecentHashSeen: an in-process,
// TTL-bounded set of content hashes seen in the last window, per
// spec.md §4.5's "last 24h" dedup window.
type RecentHashes struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	clock  ratelimit.Clock
	writes int
}

// NewRecentHashes builds a RecentHashes with the given dedup window.
func NewRecentHashes(window time.Duration) *RecentHashes {
	if window <= 0 {
		window = defaultWindow
	}
	return &RecentHashes{
		seen:   make(map[string]time.Time),
		window: window,
		clock:  &ratelimit.SystemClock{},
	}
}

// Seen implements RecentHashSeen.
func (r *RecentHashes) Seen(ctx context.Context, hashContent string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenAt, ok := r.seen[hashContent]
	if !ok {
		return false
	}
	if r.clock.Now().Sub(seenAt) > r.window {
		delete(r.seen, hashContent)
		return false
	}
	return true
}

// Remember implements RecentHashSeen.
func (r *RecentHashes) Remember(ctx context.Context, hashContent string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen[hashContent] = at
	r.writes++
	if r.writes%sweepEveryWrite == 0 {
		r.sweepExpiredLocked()
	}
}

func (r *RecentHashes) sweepExpiredLocked() {
	now := r.clock.Now()
	for hash, seenAt := range r.seen {
		if now.Sub(seenAt) > r.window {
			delete(r.seen, hash)
		}
	}
}
