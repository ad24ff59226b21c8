// Package worker decouples event emission from persistence latency: the
// request path enqueues onto a channel and the worker drains it through
// the recorder.
package worker

import (
	"context"
	"log/slog"
	"time"

	"aegis/internal/audit"
)

// drainTimeout bounds the final flush during shutdown.
const drainTimeout = 5 * time.Second

// Recorder is the subset of audit.Recorder the worker needs.
type Recorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Worker consumes audit events from a bounded channel and records them.
type Worker struct {
	recorder Recorder
	inbox    chan audit.Event
	logger   *slog.Logger
}

func New(recorder Recorder, queueSize int, logger *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		recorder: recorder,
		inbox:    make(chan audit.Event, queueSize),
		logger:   logger,
	}
}

// Emit enqueues an event without blocking the request path. When the queue
// is full the event is recorded synchronously instead of being dropped:
// losing audit records is worse than one slow request.
func (w *Worker) Emit(ctx context.Context, event audit.Event) {
	select {
	case w.inbox <- event:
	default:
		w.logger.Warn("audit queue full, recording synchronously", "event_type", event.Type)
		w.recorder.Record(ctx, event)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// still queued before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.recorder.Record(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.recorder.Record(ctx, event)
		default:
			return
		}
	}
}
