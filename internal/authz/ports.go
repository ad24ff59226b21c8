package authz

import (
	"context"

	"aegis/internal/audit"
	"aegis/internal/ratelimit/models"
	"aegis/pkg/domain"
)

// RecordStore is the record-lookup collaborator. Fetch returns
// sentinel.ErrNotFound when no record exists for the identifier; any other
// error is treated as a system fault and the check denies.
type RecordStore interface {
	Fetch(ctx context.Context, rt domain.ResourceType, id string) (*Record, error)
}

// Limiter is the slice of the rate limit service the engine consults
// before fetching a record.
type Limiter interface {
	Check(ctx context.Context, key string, class models.Class) (*models.Result, error)
}

// BlockChecker answers whether a source IP is currently blocked.
type BlockChecker interface {
	CheckBlocked(ip string) (bool, string)
}

// EventEmitter receives the audit events every decision produces.
type EventEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}
