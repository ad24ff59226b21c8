package threat

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Janitor owns the background maintenance sweeps. It is explicitly
// scheduled and cancellable so an embedding service can shut it down
// deterministically; correctness never depends on it running.
type Janitor struct {
	buffer  *Buffer
	tracker *Tracker
	logger  *slog.Logger

	bufferInterval time.Duration
	bufferMaxAge   time.Duration
	recordInterval time.Duration
	idleAfter      time.Duration
}

type JanitorOption func(*Janitor)

func JanitorWithLogger(logger *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// JanitorWithIntervals overrides the sweep cadence. Test hook.
func JanitorWithIntervals(buffer, records time.Duration) JanitorOption {
	return func(j *Janitor) {
		j.bufferInterval = buffer
		j.recordInterval = records
	}
}

func NewJanitor(buffer *Buffer, tracker *Tracker, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		buffer:         buffer,
		tracker:        tracker,
		logger:         slog.Default(),
		bufferInterval: 5 * time.Minute,
		bufferMaxAge:   time.Hour,
		recordInterval: 10 * time.Minute,
		idleAfter:      IdleExpiry,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run drives both sweeps until ctx is cancelled and returns ctx.Err().
func (j *Janitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(j.bufferInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if removed := j.buffer.TrimOlderThan(time.Now().Add(-j.bufferMaxAge)); removed > 0 {
					j.logger.Debug("trimmed event buffer", "removed", removed)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(j.recordInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if removed := j.tracker.RemoveIdle(j.idleAfter); removed > 0 {
					j.logger.Debug("removed idle threat records", "removed", removed)
				}
			}
		}
	})

	return g.Wait()
}
