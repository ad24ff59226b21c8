package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/audit"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestWorker_DrainsInbox(t *testing.T) {
	rec := &captureRecorder{}
	w := New(rec, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		w.Emit(ctx, audit.Event{Type: audit.EventLoginFailed})
	}

	require.Eventually(t, func() bool { return rec.len() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_FlushesOnShutdown(t *testing.T) {
	rec := &captureRecorder{}
	w := New(rec, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	// Queue events before the worker runs, then cancel immediately: the
	// shutdown drain must still record them.
	for i := 0; i < 10; i++ {
		w.Emit(ctx, audit.Event{Type: audit.EventAccessDenied})
	}
	cancel()

	_ = w.Run(ctx)
	assert.Equal(t, 10, rec.len())
}

func TestWorker_FullQueueFallsBackToSync(t *testing.T) {
	rec := &captureRecorder{}
	w := New(rec, 1, nil)

	ctx := context.Background()
	// No Run loop draining; second emit finds the queue full.
	w.Emit(ctx, audit.Event{Type: "first"})
	w.Emit(ctx, audit.Event{Type: "second"})

	require.Equal(t, 1, rec.len())
	assert.Equal(t, "second", rec.events[0].Type)
}
