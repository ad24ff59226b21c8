package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/audit"
	"aegis/internal/ratelimit/models"
	"aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

var tracer = otel.Tracer("aegis/internal/authz")

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_authz_decisions_total",
		Help: "Authorization decisions, by resource type, operation and outcome",
	}, []string{"resource", "operation", "outcome"})
	authorizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_authz_duration_seconds",
		Help:    "Latency of full authorization checks",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
)

// Decision outcomes recorded in telemetry. Denials are split by stage so a
// spike in one stage is visible without reading the audit trail.
const (
	outcomeAllowed     = "allowed"
	outcomeInvalidID   = "invalid_id"
	outcomeBlocked     = "blocked"
	outcomeRateLimited = "rate_limited"
	outcomeNotFound    = "not_found"
	outcomeError       = "error"
	outcomeDenied      = "denied"
)

const defaultFetchTimeout = 2 * time.Second

// Engine runs the full authorization pipeline: identifier validation,
// blocked-IP check, rate limiting, record lookup, policy dispatch and
// audit emission. Authorize never returns an error; every fault denies.
type Engine struct {
	records      RecordStore
	policies     *Table
	limiter      Limiter
	blocks       BlockChecker
	emitter      EventEmitter
	logger       *slog.Logger
	fetchTimeout time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithLimiter(limiter Limiter) Option {
	return func(e *Engine) {
		e.limiter = limiter
	}
}

func WithBlockChecker(blocks BlockChecker) Option {
	return func(e *Engine) {
		e.blocks = blocks
	}
}

func WithEmitter(emitter EventEmitter) Option {
	return func(e *Engine) {
		e.emitter = emitter
	}
}

func WithPolicyTable(table *Table) Option {
	return func(e *Engine) {
		e.policies = table
	}
}

// WithFetchTimeout bounds the record lookup. A lookup that misses the
// deadline denies rather than blocking the request.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}

func New(records RecordStore, opts ...Option) (*Engine, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	e := &Engine{
		records:      records,
		policies:     DefaultTable(),
		logger:       slog.Default(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Authorize decides whether the caller may perform its operation on the
// resource. The pipeline is ordered so cheap, attacker-relevant checks run
// first and a blocked or rate-limited caller never reaches the record
// store.
func (e *Engine) Authorize(ctx context.Context, resource domain.ResourceIdentifier, caller CallerContext) Decision {
	ctx, span := tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(
		attribute.String("resource.type", resource.Type.String()),
		attribute.String("operation", caller.Operation.String()),
	))
	defer span.End()

	timer := prometheus.NewTimer(authorizeDuration.WithLabelValues(resource.Type.String()))
	dec, outcome := e.authorize(ctx, resource, caller)
	timer.ObserveDuration()

	span.SetAttributes(attribute.String("outcome", outcome))
	decisionsTotal.WithLabelValues(resource.Type.String(), caller.Operation.String(), outcome).Inc()
	return dec
}

func (e *Engine) authorize(ctx context.Context, resource domain.ResourceIdentifier, caller CallerContext) (Decision, string) {
	if !caller.Operation.IsValid() {
		return Deny(MsgAccessDenied), outcomeDenied
	}

	vr := domain.Validate(resource.ID, resource.Type)
	if !vr.Valid {
		severity := audit.SeverityMedium
		if len(vr.Threats) > 0 {
			severity = audit.SeverityHigh
		}
		event := audit.Event{
			Type:      audit.EventInvalidResourceID,
			Severity:  severity,
			UserID:    caller.UserID,
			IPAddress: caller.IPAddress,
			UserAgent: caller.UserAgent,
			Details: audit.Details{
				{Key: "resource_type", Value: resource.Type.String()},
				{Key: "raw_id", Value: resource.ID},
			},
		}
		if len(vr.Threats) > 0 {
			event.Details.Set("threats", vr.Threats)
		}
		e.emit(ctx, event)
		return Deny(domain.MsgInvalidFormat), outcomeInvalidID
	}

	if e.blocks != nil && caller.IPAddress != "" {
		if blocked, reason := e.blocks.CheckBlocked(caller.IPAddress); blocked {
			e.emitDecision(ctx, resource, caller, Deny(MsgAccessDenied), audit.Details{
				{Key: "block_reason", Value: reason},
			})
			return Deny(MsgAccessDenied), outcomeBlocked
		}
	}

	if e.limiter != nil {
		res, err := e.limiter.Check(ctx, e.limitKey(caller), models.ClassAPI)
		if err != nil {
			e.logger.Error("rate limit check", "error", err)
			return Deny(MsgInternalError), outcomeError
		}
		if !res.Allowed {
			dec := Deny("Rate limit exceeded")
			e.emitDecision(ctx, resource, caller, dec, audit.Details{
				{Key: "retry_after", Value: res.RetryAfter},
			})
			return dec, outcomeRateLimited
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	rec, err := e.records.Fetch(fetchCtx, resource.Type, vr.SanitizedID)
	cancel()
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// Missing and forbidden records share one caller-visible message;
		// only telemetry distinguishes them.
		dec := Deny(MsgResourceNotFound)
		e.emitDecision(ctx, resource, caller, dec, audit.Details{
			{Key: "lookup", Value: "not_found"},
		})
		return dec, outcomeNotFound
	case err != nil:
		e.logger.Error("record lookup",
			"resource_type", resource.Type.String(),
			"resource_id", vr.SanitizedID,
			"error", err,
		)
		e.emit(ctx, audit.Event{
			Type:      audit.EventSystemError,
			Severity:  audit.SeverityHigh,
			UserID:    caller.UserID,
			IPAddress: caller.IPAddress,
			UserAgent: caller.UserAgent,
			Details: audit.Details{
				{Key: "resource_type", Value: resource.Type.String()},
				{Key: "stage", Value: "record_lookup"},
			},
		})
		return Deny(MsgInternalError), outcomeError
	}

	dec := e.policies.Evaluate(resource.Type, caller, rec)
	e.emitDecision(ctx, resource, caller, dec, nil)
	if dec.Allowed {
		return dec, outcomeAllowed
	}
	return dec, outcomeDenied
}

// limitKey buckets rate limiting by authenticated user, falling back to the
// source IP for anonymous callers.
func (e *Engine) limitKey(caller CallerContext) string {
	if caller.UserID != "" {
		return "user:" + caller.UserID
	}
	return "ip:" + caller.IPAddress
}

func (e *Engine) emitDecision(ctx context.Context, resource domain.ResourceIdentifier, caller CallerContext, dec Decision, extra audit.Details) {
	details := audit.Details{
		{Key: "resource_type", Value: resource.Type.String()},
		{Key: "resource_id", Value: resource.ID},
		{Key: "operation", Value: caller.Operation.String()},
	}
	event := audit.Event{
		UserID:    caller.UserID,
		IPAddress: caller.IPAddress,
		UserAgent: caller.UserAgent,
		Details:   details,
	}
	if dec.Allowed {
		event.Type = audit.EventAccessGranted
		event.Severity = audit.SeverityInfo
		if len(dec.Restrictions) > 0 {
			event.Details.Set("restrictions", dec.Restrictions)
		}
	} else {
		event.Type = audit.EventAccessDenied
		event.Severity = audit.SeverityMedium
		event.Details.Set("reason", dec.Reason)
	}
	for _, kv := range extra {
		event.Details.Set(kv.Key, kv.Value)
	}
	e.emit(ctx, event)
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.emitter == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.emitter.Emit(ctx, event)
}
