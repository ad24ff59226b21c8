// Package aegis assembles the resource authorization and security audit
// engine. A Service is constructed once at process start, holds the shared
// state (threat records, rate counters, event buffer) and is injected into
// request handlers; tests build isolated instances instead of sharing a
// global.
package aegis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"aegis/internal/audit"
	"aegis/internal/audit/sink/kafka"
	auditmem "aegis/internal/audit/store/memory"
	auditpg "aegis/internal/audit/store/postgres"
	"aegis/internal/audit/worker"
	"aegis/internal/authz"
	"aegis/internal/platform/config"
	"aegis/internal/platform/logger"
	platformredis "aegis/internal/platform/redis"
	"aegis/internal/ratelimit/ports"
	rlservice "aegis/internal/ratelimit/service"
	"aegis/internal/ratelimit/store/window"
	"aegis/internal/threat"
	"aegis/pkg/domain"
)

// Service is the assembled engine. Authorize is safe for concurrent use;
// Run must be started once for background persistence and maintenance.
type Service struct {
	engine   *authz.Engine
	recorder *audit.Recorder
	worker   *worker.Worker
	tracker  *threat.Tracker
	analyzer *threat.Analyzer
	janitor  *threat.Janitor
	limiter  *rlservice.Service
	logger   *slog.Logger

	db    *sql.DB
	redis *platformredis.Client
	sink  *kafka.Sink
}

// queueEmitter forwards events to the async worker. It exists because the
// worker is built after the components that emit through it.
type queueEmitter struct {
	worker *worker.Worker
}

func (q *queueEmitter) Emit(ctx context.Context, event audit.Event) {
	if q.worker != nil {
		q.worker.Emit(ctx, event)
	}
}

// New wires the full pipeline from configuration. The record store is the
// caller's lookup collaborator; everything else is owned by the service.
// Empty connection config selects the in-memory implementations.
func New(ctx context.Context, cfg config.Service, records authz.RecordStore) (*Service, error) {
	log := logger.New(cfg.LogLevel)
	s := &Service{logger: log}

	var store audit.Store
	var alerts audit.AlertStore
	if cfg.PostgresDSN != "" {
		db, err := auditpg.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		if err := auditpg.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate audit store: %w", err)
		}
		pg := auditpg.New(db)
		s.db, store, alerts = db, pg, pg
	} else {
		mem := auditmem.New()
		store, alerts = mem, mem
	}

	if len(cfg.KafkaBrokers) > 0 {
		opts := []kafka.Option{kafka.WithLogger(log)}
		if cfg.KafkaTopic != "" {
			opts = append(opts, kafka.WithTopic(cfg.KafkaTopic))
		}
		sink, err := kafka.New(cfg.KafkaBrokers, opts...)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("connect audit sink: %w", err)
		}
		s.sink = sink
	}

	emitter := &queueEmitter{}
	s.tracker = threat.NewTracker(
		threat.WithLogger(log),
		threat.WithEmitter(emitter),
	)
	buffer := threat.NewBuffer()
	s.analyzer = threat.NewAnalyzer(buffer, s.tracker,
		threat.AnalyzerWithLogger(log),
		threat.AnalyzerWithAlertStore(alerts),
	)
	s.janitor = threat.NewJanitor(buffer, s.tracker, threat.JanitorWithLogger(log))

	recorderOpts := []audit.RecorderOption{
		audit.WithLogger(log),
		audit.WithObserver(threat.NewMonitor(s.tracker, s.analyzer)),
	}
	if s.sink != nil {
		recorderOpts = append(recorderOpts, audit.WithSink(s.sink))
	}
	recorder, err := audit.NewRecorder(store, recorderOpts...)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.recorder = recorder
	s.worker = worker.New(recorder, 0, log)
	emitter.worker = s.worker

	var windows ports.WindowStore = window.NewInMemoryStore()
	if cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("connect rate limit store: %w", err)
		}
		s.redis = client
		windows = window.NewRedisStore(client.Client)
	}
	s.limiter, err = rlservice.New(windows,
		rlservice.WithLogger(log),
		rlservice.WithEmitter(emitter),
	)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	fetchTimeout := cfg.FetchTimeout
	engineOpts := []authz.Option{
		authz.WithLogger(log),
		authz.WithLimiter(s.limiter),
		authz.WithBlockChecker(s.tracker),
		authz.WithEmitter(emitter),
	}
	if fetchTimeout > 0 {
		engineOpts = append(engineOpts, authz.WithFetchTimeout(fetchTimeout))
	}
	s.engine, err = authz.New(records, engineOpts...)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Authorize decides whether the caller may perform the operation on the
// resource. It never returns an error: faults deny.
func (s *Service) Authorize(ctx context.Context, resource domain.ResourceIdentifier, caller authz.CallerContext) authz.Decision {
	return s.engine.Authorize(ctx, resource, caller)
}

// Record persists one security event through the async pipeline. Use this
// for events originating outside the engine, e.g. login failures from the
// authentication collaborator.
func (s *Service) Record(ctx context.Context, event audit.Event) {
	s.worker.Emit(ctx, event)
}

// Run drives the background workers until ctx is cancelled: the async
// persister and the maintenance janitor.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.worker.Run(ctx) })
	g.Go(func() error { return s.janitor.Run(ctx) })
	return g.Wait()
}

// Tracker exposes the threat tracker for administrative block management.
func (s *Service) Tracker() *threat.Tracker {
	return s.tracker
}

// Limiter exposes the rate limit service for non-engine classes (login,
// admin, custom).
func (s *Service) Limiter() *rlservice.Service {
	return s.limiter
}

// EmergencyLog returns events that could not be persisted.
func (s *Service) EmergencyLog() []audit.Event {
	return s.recorder.EmergencyLog()
}

// Close releases external connections. Call after Run has returned.
func (s *Service) Close(ctx context.Context) error {
	var firstErr error
	if s.sink != nil {
		if err := s.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
