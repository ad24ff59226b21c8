// Package service exposes the rate limit checks the authorization engine
// consults before policy evaluation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aegis/internal/audit"
	"aegis/internal/ratelimit/config"
	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/ports"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_ratelimit_checks_total",
		Help: "Rate limit checks by class and outcome",
	}, []string{"class", "outcome"})
	bypassTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_ratelimit_allowlist_bypass_total",
		Help: "Checks that bypassed rate limiting via the allowlist",
	})
)

// Service performs fixed-window rate limit checks and emits a security
// event on every denial.
type Service struct {
	store     ports.WindowStore
	emitter   ports.EventEmitter
	allowlist *Allowlist
	config    *config.Config
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEmitter(emitter ports.EventEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithAllowlist(allowlist *Allowlist) Option {
	return func(s *Service) {
		s.allowlist = allowlist
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(store ports.WindowStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}
	svc := &Service{
		store:  store,
		config: config.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check consumes one request from the key's budget for the given class.
// Keys carry their own namespace ("user:<id>", "ip:<addr>") so user and IP
// budgets never collide. Unknown classes deny: a missing budget must not
// mean unlimited.
func (s *Service) Check(ctx context.Context, key string, class models.Class) (*models.Result, error) {
	limit, ok := s.config.Limit(class)
	if !ok {
		s.logger.Warn("no rate limit configured for class, denying", "class", class)
		checksTotal.WithLabelValues(class.String(), "denied").Inc()
		return &models.Result{Allowed: false, RetryAfter: 60}, nil
	}
	return s.check(ctx, key, class, limit)
}

// CheckCustom applies a caller-supplied budget under the custom class.
func (s *Service) CheckCustom(ctx context.Context, key string, limit models.Limit) (*models.Result, error) {
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		return nil, errors.New("custom limit requires positive max requests and window")
	}
	return s.check(ctx, key, models.ClassCustom, limit)
}

func (s *Service) check(ctx context.Context, key string, class models.Class, limit models.Limit) (*models.Result, error) {
	if s.allowlist != nil && s.allowlist.Contains(key) {
		bypassTotal.Inc()
		if s.emitter != nil {
			s.emitter.Emit(ctx, audit.Event{
				Type:     "rate_limit_bypassed",
				Severity: audit.SeverityInfo,
				Details: audit.Details{
					{Key: "key", Value: key},
					{Key: "class", Value: class.String()},
				},
			})
		}
		return &models.Result{Allowed: true, Limit: limit.MaxRequests, Remaining: limit.MaxRequests}, nil
	}

	// The store key includes the class so one identifier can hold
	// independent budgets per operation class.
	result, err := s.store.Incr(ctx, key+":"+class.String(), limit.MaxRequests, limit.Window)
	if err != nil {
		// Fail closed: a broken store must not disable rate limiting.
		checksTotal.WithLabelValues(class.String(), "error").Inc()
		return &models.Result{Allowed: false, RetryAfter: 60}, err
	}

	if result.Allowed {
		checksTotal.WithLabelValues(class.String(), "allowed").Inc()
		return result, nil
	}

	checksTotal.WithLabelValues(class.String(), "denied").Inc()
	if s.emitter != nil {
		s.emitter.Emit(ctx, audit.Event{
			Type:     audit.EventRateLimitExceeded,
			Severity: audit.SeverityMedium,
			Details: audit.Details{
				{Key: "key", Value: key},
				{Key: "class", Value: class.String()},
				{Key: "limit", Value: result.Limit},
				{Key: "retry_after", Value: result.RetryAfter},
			},
		})
	}
	return result, nil
}
