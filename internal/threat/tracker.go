package threat

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aegis/internal/audit"
)

const trackerShards = 16

// BlockReasonAuto is attached to score-triggered blocks.
const BlockReasonAuto = "Automatic block due to high risk score"

var (
	blocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_threat_blocks_total",
		Help: "IP blocks applied, by kind",
	}, []string{"kind"})
	trackedRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aegis_threat_tracked_records",
		Help: "Threat records currently held in memory",
	})
)

// EventEmitter receives the administrative events the tracker produces
// (blocks, unblocks).
type EventEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Tracker maintains per-IP threat records under sharded locks so updates
// for unrelated IPs proceed in parallel. Per-IP updates are linearizable:
// the shard lock covers the read-modify-replace of a record.
type Tracker struct {
	shards [trackerShards]trackerShard

	permMu    sync.RWMutex
	permanent map[string]string // ip -> reason

	emitter EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

type trackerShard struct {
	mu      sync.Mutex
	records map[string]*Record
}

type TrackerOption func(*Tracker)

func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithEmitter(emitter EventEmitter) TrackerOption {
	return func(t *Tracker) {
		t.emitter = emitter
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		permanent: make(map[string]string),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for i := range t.shards {
		t.shards[i].records = make(map[string]*Record)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(ip string) *trackerShard {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return &t.shards[h.Sum32()%trackerShards]
}

// Update folds one security event into the IP's record, creating it
// lazily. Returns a snapshot of the resulting record.
func (t *Tracker) Update(ctx context.Context, ip string, event audit.Event) *Record {
	if ip == "" {
		return nil
	}
	now := t.now()
	sh := t.shardFor(ip)

	sh.mu.Lock()
	rec := sh.records[ip]
	if rec == nil {
		rec = &Record{IPAddress: ip, Flags: make(map[string]bool)}
		sh.records[ip] = rec
		trackedRecords.Inc()
	}

	rec.LastActivity = now
	rec.ActivityCount++
	rec.RiskScore += severityScores[event.Severity]
	if rec.RiskScore > MaxRiskScore {
		rec.RiskScore = MaxRiskScore
	}
	if strings.Contains(event.Type, "failed") {
		rec.Flags[FlagFailedAttempts] = true
	}
	if len(event.Details.Threats()) > 0 {
		rec.Flags[FlagSecurityThreats] = true
	}

	autoBlock := rec.RiskScore >= AutoBlockThreshold && !rec.Blocked(now)
	if autoBlock {
		at := now
		rec.BlockedAt = &at
		rec.BlockReason = BlockReasonAuto
	}
	snapshot := rec.clone()
	sh.mu.Unlock()

	if autoBlock {
		blocksTotal.WithLabelValues("auto").Inc()
		t.emitBlock(ctx, ip, BlockReasonAuto, snapshot.RiskScore)
	}
	return snapshot
}

// CheckBlocked reports whether an IP is currently blocked. The permanent
// set wins; temporary blocks expire lazily here, clearing the block fields
// on first check past the TTL.
func (t *Tracker) CheckBlocked(ip string) (bool, string) {
	t.permMu.RLock()
	reason, perm := t.permanent[ip]
	t.permMu.RUnlock()
	if perm {
		return true, reason
	}

	now := t.now()
	sh := t.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := sh.records[ip]
	if rec == nil || rec.BlockedAt == nil {
		return false, ""
	}
	if now.Sub(*rec.BlockedAt) > TempBlockTTL {
		rec.BlockedAt = nil
		rec.BlockReason = ""
		return false, ""
	}
	return true, rec.BlockReason
}

// Block applies a temporary block (TempBlockTTL) with the given reason.
func (t *Tracker) Block(ctx context.Context, ip, reason string) {
	now := t.now()
	sh := t.shardFor(ip)

	sh.mu.Lock()
	rec := sh.records[ip]
	if rec == nil {
		rec = &Record{IPAddress: ip, Flags: make(map[string]bool)}
		sh.records[ip] = rec
		trackedRecords.Inc()
	}
	rec.LastActivity = now
	at := now
	rec.BlockedAt = &at
	rec.BlockReason = reason
	score := rec.RiskScore
	sh.mu.Unlock()

	blocksTotal.WithLabelValues("manual").Inc()
	t.emitBlock(ctx, ip, reason, score)
}

// BlockPermanent adds the IP to the permanent block set. Only Unblock
// removes it.
func (t *Tracker) BlockPermanent(ctx context.Context, ip, reason string) {
	t.permMu.Lock()
	t.permanent[ip] = reason
	t.permMu.Unlock()

	blocksTotal.WithLabelValues("permanent").Inc()
	t.emitBlock(ctx, ip, reason, MaxRiskScore)
}

// Unblock clears any block on the IP and resets its risk score so a
// forgiven source starts clean.
func (t *Tracker) Unblock(ctx context.Context, ip string) {
	t.permMu.Lock()
	delete(t.permanent, ip)
	t.permMu.Unlock()

	sh := t.shardFor(ip)
	sh.mu.Lock()
	if rec := sh.records[ip]; rec != nil {
		rec.BlockedAt = nil
		rec.BlockReason = ""
		rec.RiskScore = 0
	}
	sh.mu.Unlock()

	if t.emitter != nil {
		t.emitter.Emit(ctx, audit.Event{
			Type:      audit.EventIPUnblocked,
			Severity:  audit.SeverityInfo,
			IPAddress: ip,
		})
	}
}

// Snapshot returns a copy of the IP's record for operator inspection.
func (t *Tracker) Snapshot(ip string) (*Record, bool) {
	sh := t.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec := sh.records[ip]
	if rec == nil {
		return nil, false
	}
	return rec.clone(), true
}

// RemoveIdle deletes unblocked records whose last activity is older than
// the cutoff. Candidate IPs are snapshotted first so no shard lock is held
// for the full sweep.
func (t *Tracker) RemoveIdle(olderThan time.Duration) int {
	now := t.now()
	cutoff := now.Add(-olderThan)
	removed := 0
	for i := range t.shards {
		sh := &t.shards[i]

		sh.mu.Lock()
		candidates := make([]string, 0)
		for ip, rec := range sh.records {
			if rec.LastActivity.Before(cutoff) && !rec.Blocked(now) {
				candidates = append(candidates, ip)
			}
		}
		for _, ip := range candidates {
			delete(sh.records, ip)
			trackedRecords.Dec()
			removed++
		}
		sh.mu.Unlock()
	}
	return removed
}

func (t *Tracker) emitBlock(ctx context.Context, ip, reason string, score int) {
	t.logger.Warn("ip blocked", "ip", ip, "reason", reason, "risk_score", score)
	if t.emitter == nil {
		return
	}
	t.emitter.Emit(ctx, audit.Event{
		Type:      audit.EventIPBlocked,
		Severity:  audit.SeverityHigh,
		IPAddress: ip,
		Details: audit.Details{
			{Key: "reason", Value: reason},
			{Key: "risk_score", Value: score},
		},
	})
}
