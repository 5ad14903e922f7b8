package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// batchFlushInterval bounds how long a coalesced write can wait for
// siblings before it is forced through on its own, so a quiet batch key
// never stalls indefinitely.
const batchFlushInterval = 200 * time.Millisecond

// batchDepthThreshold is the queue depth (spec.md §4.9) above which
// writes sharing a batch key are coalesced into a single transaction
// instead of running one at a time.
const batchDepthThreshold = 20

// BatchUnit is one member of a coalesced write. apply runs inside the
// shared transaction; the batcher does not interpret its contents.
type BatchUnit func(ctx context.Context, tx *sql.Tx) error

type batchRequest struct {
	unit BatchUnit
	done chan error
}

// batcher coalesces writes sharing one batch key (e.g.
// "article_categories:article_id") into a single transaction once
// enough accumulate, or after batchFlushInterval elapses, whichever
// comes first.
type batcher struct {
	key   string
	queue *Queue

	mu      sync.Mutex
	pending []batchRequest
	timer   *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newBatcher(key string, q *Queue) *batcher {
	b := &batcher{key: key, queue: q, stopCh: make(chan struct{})}
	return b
}

// submit enqueues unit for the next flush and blocks until it has run
// (or the batcher is stopped). The caller's shard lock is not held
// across the wait, since other batch members would deadlock on it.
func (b *batcher) submit(ctx context.Context, unit BatchUnit) error {
	req := batchRequest{unit: unit, done: make(chan error, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, req)
	depth := len(b.pending)
	if depth >= batchDepthThreshold {
		pending := b.pending
		b.pending = nil
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
		b.flush(ctx, pending)
	} else {
		if b.timer == nil {
			b.timer = time.AfterFunc(batchFlushInterval, b.flushPending)
		}
		b.mu.Unlock()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopCh:
		return ErrQueueClosed
	}
}

func (b *batcher) flushPending() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()
	if len(pending) > 0 {
		b.flush(context.Background(), pending)
	}
}

// flush runs every pending unit inside one transaction submitted
// through the owning Queue, so deadlock retry and backpressure
// accounting still apply to the coalesced write.
func (b *batcher) flush(ctx context.Context, pending []batchRequest) {
	err := b.queue.Submit(ctx, b.key, func(ctx context.Context, tx *sql.Tx) error {
		for _, req := range pending {
			if err := req.unit(ctx, tx); err != nil {
				return fmt.Errorf("persistence: batch member failed: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		slog.Warn("persistence: batch flush failed", slog.String("batch_key", b.key),
			slog.Int("size", len(pending)), slog.String("error", err.Error()))
	}
	for _, req := range pending {
		req.done <- err
	}
}

func (b *batcher) stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		b.mu.Unlock()
	})
}

// SubmitBatched coalesces unit with any other writes sharing batchKey
// once the queue's write depth crosses batchDepthThreshold; below that
// threshold it runs immediately via Submit, matching spec.md §4.9's
// "coalesce when the queue depth exceeds a threshold" contract.
func (q *Queue) SubmitBatched(ctx context.Context, batchKey string, unit BatchUnit) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	if atomic.LoadInt64(&q.writeDepth) < batchDepthThreshold {
		return q.Submit(ctx, batchKey, func(ctx context.Context, tx *sql.Tx) error {
			return unit(ctx, tx)
		})
	}

	q.batchersMu.Lock()
	b, ok := q.batchers[batchKey]
	if !ok {
		b = newBatcher(batchKey, q)
		q.batchers[batchKey] = b
	}
	q.batchersMu.Unlock()

	return b.submit(ctx, unit)
}
