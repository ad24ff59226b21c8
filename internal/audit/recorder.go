package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mssola/useragent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	recordAttempts = 3
	// emergencyLogCap bounds the local fallback so a dead store cannot
	// grow memory without bound. Oldest entries are evicted first.
	emergencyLogCap = 100
)

var (
	recordRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_record_retries_total",
		Help: "Number of audit persistence attempts that had to be retried",
	})
	recordFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_record_fallbacks_total",
		Help: "Number of events diverted to the emergency log after exhausted retries",
	})
)

// ProfileCache supplies a cached caller profile snippet for enrichment.
// Lookups must be cheap; the recorder calls it on the persistence path.
type ProfileCache interface {
	Snippet(ctx context.Context, userID string) (string, bool)
}

// Observer sees every enriched event before persistence. Observers must
// not block: the recorder calls them on the persistence path.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// Recorder enriches events and writes them through the configured store
// with bounded retries. It never surfaces storage failures to callers: on
// exhausted retries the event lands in a bounded emergency log instead of
// being dropped.
type Recorder struct {
	store     Store
	sink      Sink
	profiles  ProfileCache
	observers []Observer
	logger    *slog.Logger
	backoff   func(attempt int) time.Duration

	mu        sync.Mutex
	emergency []Event
}

type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithSink(sink Sink) RecorderOption {
	return func(r *Recorder) {
		r.sink = sink
	}
}

func WithProfileCache(cache ProfileCache) RecorderOption {
	return func(r *Recorder) {
		r.profiles = cache
	}
}

// WithObserver registers an observer for every recorded event. The threat
// tracker and analyzer attach here.
func WithObserver(observer Observer) RecorderOption {
	return func(r *Recorder) {
		r.observers = append(r.observers, observer)
	}
}

// withBackoff overrides the retry schedule. Test hook.
func withBackoff(fn func(attempt int) time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.backoff = fn
	}
}

func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	r := &Recorder{
		store:   store,
		logger:  slog.Default(),
		backoff: exponentialBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// exponentialBackoff yields 1s, 2s, 4s for attempts 1..3.
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

// Record enriches and durably persists one event. Blocking is bounded by
// the retry schedule and the caller's context; cancellation diverts the
// event to the emergency log rather than losing it.
func (r *Recorder) Record(ctx context.Context, event Event) {
	event = r.enrich(ctx, event)

	for _, observer := range r.observers {
		observer.Observe(ctx, event)
	}
	if r.sink != nil {
		r.sink.Publish(ctx, event)
	}

	var lastErr error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if attempt > 1 {
			recordRetries.Inc()
			timer := time.NewTimer(r.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				r.fallback(event, ctx.Err())
				return
			case <-timer.C:
			}
		}
		if lastErr = r.store.Append(ctx, event); lastErr == nil {
			return
		}
	}
	r.fallback(event, lastErr)
}

// enrich attaches best-effort context without overwriting anything the
// emitter already set.
func (r *Recorder) enrich(ctx context.Context, event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if !event.Severity.IsValid() {
		event.Severity = SeverityInfo
	}
	if _, ok := event.Details.Get("geo"); !ok && event.IPAddress != "" {
		// Placeholder until a geolocation provider is wired in.
		event.Details.Set("geo", "unresolved")
	}
	if event.UserAgent != "" {
		if _, ok := event.Details.Get("client"); !ok {
			event.Details.Set("client", summarizeUserAgent(event.UserAgent))
		}
	}
	if r.profiles != nil && event.UserID != "" {
		if _, ok := event.Details.Get("profile"); !ok {
			if snippet, ok := r.profiles.Snippet(ctx, event.UserID); ok {
				event.Details.Set("profile", snippet)
			}
		}
	}
	return event
}

func (r *Recorder) fallback(event Event, cause error) {
	recordFallbacks.Inc()
	r.logger.Error("audit store unavailable, event diverted to emergency log",
		"event_type", event.Type,
		"severity", event.Severity,
		"error", cause,
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.emergency = append(r.emergency, event)
	if len(r.emergency) > emergencyLogCap {
		r.emergency = r.emergency[len(r.emergency)-emergencyLogCap:]
	}
}

// EmergencyLog returns a copy of the events that could not be persisted,
// most recent last. Operators drain this after restoring the store.
func (r *Recorder) EmergencyLog() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.emergency...)
}

// summarizeUserAgent reduces a raw user agent to a compact browser/OS
// summary for the audit trail.
func summarizeUserAgent(raw string) string {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	parts := make([]string, 0, 3)
	if name != "" {
		if version != "" {
			parts = append(parts, name+"/"+version)
		} else {
			parts = append(parts, name)
		}
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if ua.Bot() {
		parts = append(parts, "bot")
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "; ")
}
