package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/audit"
	"aegis/internal/ratelimit/config"
	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/store/window"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (e *captureEmitter) Emit(_ context.Context, event audit.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *captureEmitter) byType(eventType string) []audit.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []audit.Event
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type brokenStore struct{}

func (brokenStore) Incr(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("store down")
}

func (brokenStore) Reset(context.Context, string) error { return nil }

func newService(t *testing.T, opts ...Option) (*Service, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	svc, err := New(window.NewInMemoryStore(), append([]Option{WithEmitter(emitter)}, opts...)...)
	require.NoError(t, err)
	return svc, emitter
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a store", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})

	t.Run("login class enforces five per window", func(t *testing.T) {
		svc, _ := newService(t)
		for i := 0; i < 5; i++ {
			result, err := svc.Check(ctx, "ip:10.0.0.1", models.ClassLogin)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d", i+1)
		}
		result, err := svc.Check(ctx, "ip:10.0.0.1", models.ClassLogin)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Positive(t, result.RetryAfter)
	})

	t.Run("classes hold independent budgets for one key", func(t *testing.T) {
		svc, _ := newService(t)
		for i := 0; i < 5; i++ {
			_, err := svc.Check(ctx, "ip:10.0.0.2", models.ClassLogin)
			require.NoError(t, err)
		}
		result, err := svc.Check(ctx, "ip:10.0.0.2", models.ClassAPI)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("denial emits a medium severity event", func(t *testing.T) {
		svc, emitter := newService(t)
		for i := 0; i < 6; i++ {
			_, err := svc.Check(ctx, "ip:10.0.0.3", models.ClassLogin)
			require.NoError(t, err)
		}
		events := emitter.byType(audit.EventRateLimitExceeded)
		require.Len(t, events, 1)
		assert.Equal(t, audit.SeverityMedium, events[0].Severity)
		key, _ := events[0].Details.Get("key")
		assert.Equal(t, "ip:10.0.0.3", key)
	})

	t.Run("unknown class denies", func(t *testing.T) {
		svc, _ := newService(t)
		result, err := svc.Check(ctx, "ip:10.0.0.4", models.Class("mystery"))
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Positive(t, result.RetryAfter)
	})

	t.Run("store failure denies", func(t *testing.T) {
		svc, err := New(brokenStore{})
		require.NoError(t, err)
		result, err := svc.Check(ctx, "ip:10.0.0.5", models.ClassAPI)
		assert.Error(t, err)
		assert.False(t, result.Allowed)
	})

	t.Run("override via config", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.SetLimit(models.ClassAPI, models.Limit{MaxRequests: 1, Window: time.Hour})
		svc, _ := newService(t, WithConfig(cfg))

		first, err := svc.Check(ctx, "user:u1", models.ClassAPI)
		require.NoError(t, err)
		assert.True(t, first.Allowed)

		second, err := svc.Check(ctx, "user:u1", models.ClassAPI)
		require.NoError(t, err)
		assert.False(t, second.Allowed)
	})
}

func TestService_CheckCustom(t *testing.T) {
	ctx := context.Background()

	t.Run("applies caller-supplied budget", func(t *testing.T) {
		svc, _ := newService(t)
		limit := models.Limit{MaxRequests: 2, Window: time.Minute}

		for i := 0; i < 2; i++ {
			result, err := svc.CheckCustom(ctx, "user:u2", limit)
			require.NoError(t, err)
			assert.True(t, result.Allowed)
		}
		result, err := svc.CheckCustom(ctx, "user:u2", limit)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
	})

	t.Run("rejects non-positive budgets", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CheckCustom(ctx, "user:u3", models.Limit{})
		assert.Error(t, err)
	})
}

func TestService_Allowlist(t *testing.T) {
	ctx := context.Background()

	allowlist := NewAllowlist()
	allowlist.Add("ip:192.0.2.10", "health probe")
	svc, emitter := newService(t, WithAllowlist(allowlist))

	// Far past the login budget; every call bypasses.
	for i := 0; i < 20; i++ {
		result, err := svc.Check(ctx, "ip:192.0.2.10", models.ClassLogin)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	assert.Empty(t, emitter.byType(audit.EventRateLimitExceeded))
	assert.Len(t, emitter.byType("rate_limit_bypassed"), 20)

	allowlist.Remove("ip:192.0.2.10")
	for i := 0; i < 5; i++ {
		_, err := svc.Check(ctx, "ip:192.0.2.10", models.ClassLogin)
		require.NoError(t, err)
	}
	result, err := svc.Check(ctx, "ip:192.0.2.10", models.ClassLogin)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}
