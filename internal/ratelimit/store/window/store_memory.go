// Package window implements the fixed-window counter stores.
package window

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"aegis/internal/ratelimit/models"
)

// shardCount spreads keys over independent locks so concurrent checks on
// different keys never serialize. Power of two for cheap masking.
const shardCount = 16

// InMemoryStore is the single-process WindowStore. Each shard guards a
// map of immutable Window snapshots; an increment builds the successor
// snapshot under the shard lock and swaps it in.
type InMemoryStore struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*models.Window
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*models.Window)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()&(shardCount-1)]
}

func (s *InMemoryStore) Incr(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.windows[key]
	if w == nil || now.Sub(w.WindowStart) >= window {
		// Window elapsed (or first request): open a fresh one anchored to
		// this request.
		w = &models.Window{WindowStart: now}
	}

	resetAt := w.WindowStart.Add(window)
	if w.Count >= limit {
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}, nil
	}

	sh.windows[key] = &models.Window{Count: w.Count + 1, WindowStart: w.WindowStart}
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.Count - 1,
		ResetAt:   resetAt,
	}, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, key)
	return nil
}

// retryAfterSeconds rounds up so callers never retry before the window
// actually opens.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
