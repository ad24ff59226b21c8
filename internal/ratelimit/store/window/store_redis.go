package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis/internal/ratelimit/models"
)

const redisKeyPrefix = "rl:win:"

// RedisStore is the distributed WindowStore for multi-instance
// deployments. INCR is atomic on the server, so concurrent increments
// across processes never lose updates; the key TTL is the window anchor.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	rkey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return nil, fmt.Errorf("incr window counter: %w", err)
	}
	if count == 1 {
		// First request anchors the window.
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return nil, fmt.Errorf("set window expiry: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return nil, fmt.Errorf("read window ttl: %w", err)
	}
	if ttl < 0 {
		// Expiry was lost (e.g. crash between INCR and PEXPIRE); restore
		// it rather than leaving an immortal counter.
		ttl = window
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return nil, fmt.Errorf("restore window expiry: %w", err)
		}
	}

	now := time.Now()
	resetAt := now.Add(ttl)
	if count > int64(limit) {
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}, nil
	}

	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}
