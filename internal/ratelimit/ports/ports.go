// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"time"

	"aegis/internal/audit"
	"aegis/internal/ratelimit/models"
)

// WindowStore manages fixed-window counters. Incr must be atomic per key:
// two concurrent calls on the same key never observe the same count.
type WindowStore interface {
	// Incr consumes one request from the key's current window, opening a
	// new window when the previous one has elapsed.
	Incr(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}

// EventEmitter receives security events produced on rate limit denials.
type EventEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}
