package threat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aegis/internal/audit"
)

// Alert types produced by the detectors.
const (
	AlertBruteForceLogin     = "brute_force_login"
	AlertRapidFireRequests   = "rapid_fire_requests"
	AlertPrivilegeEscalation = "privilege_escalation_attempt"
	AlertMaliciousPayload    = "malicious_payload"
)

// Detection thresholds.
const (
	bruteForceThreshold = 3
	bruteForceWindow    = 15 * time.Minute
	rapidFireThreshold  = 50
	rapidFireWindow     = time.Minute
)

var alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_threat_alerts_total",
	Help: "Suspicious activity alerts emitted, by type",
}, []string{"type"})

// Blocker is the slice of the tracker the analyzer writes back into: a
// critical finding blocks its source immediately rather than waiting for
// the risk score to accumulate.
type Blocker interface {
	Block(ctx context.Context, ip, reason string)
}

// Analyzer runs four independent detectors over the rolling event buffer.
// Each invocation yields at most one alert per detector; a per-IP cooldown
// equal to the detector window keeps an attack burst from emitting
// hundreds of identical alerts.
type Analyzer struct {
	buffer  *Buffer
	blocker Blocker
	alerts  audit.AlertStore
	logger  *slog.Logger
	now     func() time.Time

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time // alertType|ip -> expiry
}

type AnalyzerOption func(*Analyzer)

func AnalyzerWithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

func AnalyzerWithAlertStore(store audit.AlertStore) AnalyzerOption {
	return func(a *Analyzer) {
		a.alerts = store
	}
}

// AnalyzerWithClock overrides the time source. Test hook.
func AnalyzerWithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		a.now = now
	}
}

func NewAnalyzer(buffer *Buffer, blocker Blocker, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		buffer:    buffer,
		blocker:   blocker,
		logger:    slog.Default(),
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze folds the event into the buffer and runs every detector.
// Returns the alerts emitted, already persisted and acted upon.
func (a *Analyzer) Analyze(ctx context.Context, event audit.Event) []audit.Alert {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}
	a.buffer.Add(event)

	var alerts []audit.Alert
	if alert := a.detectBruteForce(event); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := a.detectRapidFire(event); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := a.detectEscalation(event); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := a.detectPayload(event); alert != nil {
		alerts = append(alerts, *alert)
	}

	for _, alert := range alerts {
		a.emit(ctx, alert)
	}
	return alerts
}

func (a *Analyzer) detectBruteForce(event audit.Event) *audit.Alert {
	if event.Type != audit.EventLoginFailed || event.IPAddress == "" {
		return nil
	}
	since := event.Timestamp.Add(-bruteForceWindow)
	count := a.buffer.CountByType(event.IPAddress, audit.EventLoginFailed, since)
	if count < bruteForceThreshold {
		return nil
	}
	if !a.claimCooldown(AlertBruteForceLogin, event.IPAddress, bruteForceWindow) {
		return nil
	}
	return &audit.Alert{
		Type:        AlertBruteForceLogin,
		Severity:    audit.SeverityHigh,
		Description: fmt.Sprintf("%d failed logins from %s within %s", count, event.IPAddress, bruteForceWindow),
		UserID:      event.UserID,
		IPAddress:   event.IPAddress,
		Evidence: audit.Details{
			{Key: "failed_logins", Value: count},
			{Key: "window", Value: bruteForceWindow.String()},
		},
		RecommendedAction: "lock the targeted account and review source IP",
		Timestamp:         event.Timestamp,
	}
}

func (a *Analyzer) detectRapidFire(event audit.Event) *audit.Alert {
	if event.IPAddress == "" {
		return nil
	}
	since := event.Timestamp.Add(-rapidFireWindow)
	count := a.buffer.CountFrom(event.IPAddress, since)
	if count < rapidFireThreshold {
		return nil
	}
	if !a.claimCooldown(AlertRapidFireRequests, event.IPAddress, rapidFireWindow) {
		return nil
	}
	return &audit.Alert{
		Type:        AlertRapidFireRequests,
		Severity:    audit.SeverityMedium,
		Description: fmt.Sprintf("%d requests from %s within %s", count, event.IPAddress, rapidFireWindow),
		IPAddress:   event.IPAddress,
		Evidence: audit.Details{
			{Key: "requests", Value: count},
			{Key: "window", Value: rapidFireWindow.String()},
		},
		RecommendedAction: "rate limit or block the source IP",
		Timestamp:         event.Timestamp,
	}
}

// detectEscalation fires on a single event: a high-severity permission
// failure needs no window to be suspicious.
func (a *Analyzer) detectEscalation(event audit.Event) *audit.Alert {
	if !strings.Contains(event.Type, "permission") || event.Severity != audit.SeverityHigh {
		return nil
	}
	if event.IPAddress != "" && !a.claimCooldown(AlertPrivilegeEscalation, event.IPAddress, rapidFireWindow) {
		return nil
	}
	return &audit.Alert{
		Type:        AlertPrivilegeEscalation,
		Severity:    audit.SeverityHigh,
		Description: fmt.Sprintf("high severity permission event %q", event.Type),
		UserID:      event.UserID,
		IPAddress:   event.IPAddress,
		Evidence: audit.Details{
			{Key: "event_type", Value: event.Type},
		},
		RecommendedAction: "review the caller's role assignments",
		Timestamp:         event.Timestamp,
	}
}

func (a *Analyzer) detectPayload(event audit.Event) *audit.Alert {
	threats := event.Details.Threats()
	if len(threats) == 0 {
		return nil
	}
	if event.IPAddress != "" && !a.claimCooldown(AlertMaliciousPayload, event.IPAddress, rapidFireWindow) {
		return nil
	}
	return &audit.Alert{
		Type:        AlertMaliciousPayload,
		Severity:    audit.SeverityCritical,
		Description: fmt.Sprintf("injection patterns detected: %s", strings.Join(threats, ", ")),
		UserID:      event.UserID,
		IPAddress:   event.IPAddress,
		Evidence: audit.Details{
			{Key: "threats", Value: threats},
		},
		RecommendedAction: "block the source IP",
		Timestamp:         event.Timestamp,
	}
}

// emit persists the alert and, for critical findings, blocks the source.
// This is the single path where the analyzer writes back into the tracker.
func (a *Analyzer) emit(ctx context.Context, alert audit.Alert) {
	alertsTotal.WithLabelValues(alert.Type).Inc()
	a.logger.Warn("suspicious activity detected",
		"alert_type", alert.Type,
		"severity", alert.Severity,
		"ip", alert.IPAddress,
	)

	if a.alerts != nil {
		if err := a.alerts.AppendAlert(ctx, alert); err != nil {
			a.logger.Error("persist alert", "alert_type", alert.Type, "error", err)
		}
	}

	if alert.Severity == audit.SeverityCritical && a.blocker != nil && alert.IPAddress != "" {
		a.blocker.Block(ctx, alert.IPAddress, fmt.Sprintf("Blocked on critical alert: %s", alert.Type))
	}
}

// claimCooldown reports whether this alert type may fire for the IP and,
// when it may, starts the cooldown.
func (a *Analyzer) claimCooldown(alertType, ip string, window time.Duration) bool {
	key := alertType + "|" + ip
	now := a.now()

	a.cooldownMu.Lock()
	defer a.cooldownMu.Unlock()
	if expiry, ok := a.cooldowns[key]; ok && now.Before(expiry) {
		return false
	}
	a.cooldowns[key] = now.Add(window)
	return true
}
