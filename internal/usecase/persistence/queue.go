// Package persistence implements C9, the Persistence Queue: a
// process-wide serialized access layer in front of the relational
// store. Business logic never touches a repository's *sql.DB directly;
// it submits reads and writes through a Queue, which serializes writes
// per shard key, retries driver-reported deadlocks with fresh
// transactions, coalesces batched writes, and signals backpressure to
// C6 when the write backlog grows too deep.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"pulsefeed/internal/resilience/circuitbreaker"
)

const (
	defaultReadPoolSize  = 10
	defaultHighWaterMark = 200
	defaultLowWaterMark  = 50
	defaultDeadlockMax   = 4

	deadlockInitialDelay = 50 * time.Millisecond
	deadlockMaxDelay     = 1 * time.Second
)

// ErrQueueClosed is returned by Submit/Read after Close.
var ErrQueueClosed = errors.New("persistence: queue is closed")

// WriteUnit is one unit of work run inside a single transaction.
type WriteUnit func(ctx context.Context, tx *sql.Tx) error

// Queue is C9's entry point.
type Queue struct {
	db             *sql.DB
	circuitBreaker *circuitbreaker.CircuitBreaker
	readSem        *semaphore.Weighted

	shardMu sync.Mutex
	shards  map[string]*sync.Mutex

	batchers   map[string]*batcher
	batchersMu sync.Mutex

	writeDepth int64
	paused     atomic.Bool

	highWater int64
	lowWater  int64

	closed atomic.Bool
}

// Config tunes the Queue's pool sizes and watermarks.
type Config struct {
	ReadPoolSize  int
	HighWaterMark int64
	LowWaterMark  int64
}

// DefaultConfig returns the watermarks spec.md §4.9 implies without
// naming concrete numbers.
func DefaultConfig() Config {
	return Config{
		ReadPoolSize:  defaultReadPoolSize,
		HighWaterMark: defaultHighWaterMark,
		LowWaterMark:  defaultLowWaterMark,
	}
}

// New builds a Queue over db.
func New(db *sql.DB, cfg Config) *Queue {
	if cfg.ReadPoolSize <= 0 {
		cfg.ReadPoolSize = defaultReadPoolSize
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = defaultHighWaterMark
	}
	if cfg.LowWaterMark <= 0 {
		cfg.LowWaterMark = defaultLowWaterMark
	}
	return &Queue{
		db:             db,
		circuitBreaker: circuitbreaker.New(circuitbreaker.PersistenceWriteConfig()),
		readSem:        semaphore.NewWeighted(int64(cfg.ReadPoolSize)),
		shards:         make(map[string]*sync.Mutex),
		batchers:       make(map[string]*batcher),
		highWater:      cfg.HighWaterMark,
		lowWater:       cfg.LowWaterMark,
	}
}

// DB exposes the raw connection for repository constructors. Only the
// Queue itself should drive write transactions against it; repositories
// use it for their own read-only SELECTs, wrapped by Read.
func (q *Queue) DB() *sql.DB { return q.db }

func (q *Queue) shardLock(shardKey string) *sync.Mutex {
	q.shardMu.Lock()
	defer q.shardMu.Unlock()
	m, ok := q.shards[shardKey]
	if !ok {
		m = &sync.Mutex{}
		q.shards[shardKey] = m
	}
	return m
}

// Submit serializes unit against every other write sharing shardKey
// (default: a table name), retrying on deadlock/lock-timeout with a
// fresh transaction per spec.md §4.9.
func (q *Queue) Submit(ctx context.Context, shardKey string, unit WriteUnit) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	lock := q.shardLock(shardKey)
	lock.Lock()
	defer lock.Unlock()

	atomic.AddInt64(&q.writeDepth, 1)
	defer q.afterWrite()

	return q.runInTransaction(ctx, unit)
}

func (q *Queue) afterWrite() {
	depth := atomic.AddInt64(&q.writeDepth, -1)
	if depth >= q.highWater {
		if !q.paused.Swap(true) {
			slog.Warn("persistence queue write depth crossed high water mark, signaling backpressure",
				slog.Int64("depth", depth), slog.Int64("high_water", q.highWater))
		}
	} else if depth <= q.lowWater {
		if q.paused.Swap(false) {
			slog.Info("persistence queue write depth recovered below low water mark", slog.Int64("depth", depth))
		}
	}
}

// ShouldPauseIngestion reports whether C6 source adapters should stop
// enqueueing new writes until the backlog drains (spec.md §4.9
// backpressure contract).
func (q *Queue) ShouldPauseIngestion() bool {
	return q.paused.Load()
}

// runInTransaction retries unit up to defaultDeadlockMax times with a
// fresh transaction whenever the driver reports a deadlock or lock
// timeout, per spec.md §4.9. Each attempt is routed through the
// circuit breaker so a database that is down entirely trips it instead
// of burning the full deadlock-retry budget on connection errors.
func (q *Queue) runInTransaction(ctx context.Context, unit WriteUnit) error {
	delay := deadlockInitialDelay
	var lastErr error
	for attempt := 1; attempt <= defaultDeadlockMax; attempt++ {
		_, err := q.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, q.execTx(ctx, unit)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("persistence: circuit breaker open: %w", err)
		}
		if !isDeadlock(err) {
			return err
		}

		lastErr = err
		slog.Warn("persistence: deadlock detected, retrying with fresh transaction",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))

		if attempt == defaultDeadlockMax {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > deadlockMaxDelay {
			delay = deadlockMaxDelay
		}
	}
	return fmt.Errorf("persistence: deadlock persisted after %d attempts: %w", defaultDeadlockMax, lastErr)
}

func (q *Queue) execTx(ctx context.Context, unit WriteUnit) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}

	if err := unit(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("persistence: rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit tx: %w", err)
	}
	return nil
}

// Read runs fn against the bounded read pool, proceeding concurrently
// with other reads and with in-flight writes.
func (q *Queue) Read(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := q.readSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("persistence: acquire read slot: %w", err)
	}
	defer q.readSem.Release(1)

	return fn(ctx, q.db)
}

// Close stops accepting new work and flushes any pending batchers.
func (q *Queue) Close() {
	q.closed.Store(true)
	q.batchersMu.Lock()
	defer q.batchersMu.Unlock()
	for _, b := range q.batchers {
		b.stop()
	}
}

// isDeadlock recognizes the Postgres deadlock/lock-timeout SQLSTATEs
// (40P01, 55P03) without importing the pgx error type directly, so the
// same check works for any driver wrapping similar errors.
func isDeadlock(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "deadlock detected", "40P01", "lock timeout", "55P03")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
