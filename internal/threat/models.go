// Package threat maintains per-IP risk intelligence over the stream of
// security events and detects suspicious activity patterns.
package threat

import (
	"sort"
	"time"

	"aegis/internal/audit"
)

// Risk scoring constants. Scores only ever grow; decay happens through
// explicit unblock or idle expiry, never passively.
const (
	MaxRiskScore       = 100
	AutoBlockThreshold = 90
	// TempBlockTTL is how long an automatic or analyzer-triggered block
	// lasts before lazy expiry clears it.
	TempBlockTTL = 24 * time.Hour
	// IdleExpiry is how long an unblocked record may sit inactive before
	// the janitor removes it.
	IdleExpiry = 7 * 24 * time.Hour
)

// severityScores maps event severity to its risk score contribution.
var severityScores = map[audit.Severity]int{
	audit.SeverityInfo:     0,
	audit.SeverityLow:      1,
	audit.SeverityMedium:   5,
	audit.SeverityHigh:     15,
	audit.SeverityCritical: 25,
}

// Flags accumulated on a threat record.
const (
	FlagFailedAttempts  = "failed_attempts"
	FlagSecurityThreats = "security_threats"
)

// Record is the rolling risk profile of one source IP. Created lazily on
// first event.
type Record struct {
	IPAddress     string
	RiskScore     int
	LastActivity  time.Time
	ActivityCount int
	Flags         map[string]bool
	BlockedAt     *time.Time
	BlockReason   string
}

// Blocked reports whether the record carries an unexpired block as of now.
func (r *Record) Blocked(now time.Time) bool {
	return r.BlockedAt != nil && now.Sub(*r.BlockedAt) <= TempBlockTTL
}

// FlagList returns the accumulated flags in stable order.
func (r *Record) FlagList() []string {
	out := make([]string, 0, len(r.Flags))
	for f := range r.Flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// clone returns an independent copy so callers can inspect a record
// without holding tracker locks.
func (r *Record) clone() *Record {
	cp := *r
	cp.Flags = make(map[string]bool, len(r.Flags))
	for f := range r.Flags {
		cp.Flags[f] = true
	}
	if r.BlockedAt != nil {
		at := *r.BlockedAt
		cp.BlockedAt = &at
	}
	return &cp
}
