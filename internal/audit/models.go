// Package audit defines the security event and alert models shared by the
// engine, the rate limiter and the threat tracker, plus the recorder that
// makes them durable. Events are transport-agnostic so stores and sinks can
// fan out.
package audit

import (
	"bytes"
	"encoding/json"
	"time"
)

// Severity grades security events and alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string to a Severity, defaulting to info for
// unknown values so malformed input can never inflate a risk score.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	}
	return SeverityInfo
}

// IsValid checks if the severity is one of the supported enum values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// KV is one entry of an ordered detail map.
type KV struct {
	Key   string
	Value any
}

// Details is an insertion-ordered key-value list. Order matters for audit
// readability and for stable serialization, which rules out a plain map.
type Details []KV

// Get returns the value for a key and whether it was present.
func (d Details) Get(key string) (any, bool) {
	for _, kv := range d {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for a key, appending when absent.
func (d *Details) Set(key string, value any) {
	for i, kv := range *d {
		if kv.Key == key {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, KV{Key: key, Value: value})
}

// MarshalJSON serializes the details as a single JSON object with keys in
// insertion order.
func (d Details) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Threats returns the threat families recorded under the "threats" detail
// key, if any. The identifier validator populates this upstream.
func (d Details) Threats() []string {
	v, ok := d.Get("threats")
	if !ok {
		return nil
	}
	threats, _ := v.([]string)
	return threats
}

// Event captures one security-relevant occurrence: a policy decision, a
// validation failure, a rate limit denial or an administrative action.
// Immutable once recorded.
type Event struct {
	Type      string
	Severity  Severity
	UserID    string
	IPAddress string
	UserAgent string
	Details   Details
	Timestamp time.Time
}

// Well-known event types. Free-form types are allowed; these are the ones
// the core emits itself and the analyzer keys on.
const (
	EventAccessGranted     = "access_granted"
	EventAccessDenied      = "access_denied"
	EventInvalidResourceID = "invalid_resource_id"
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventLoginFailed       = "login_failed"
	EventIPBlocked         = "ip_blocked"
	EventIPUnblocked       = "ip_unblocked"
	EventPermissionDenied  = "permission_denied"
	EventSystemError       = "system_error"
)

// Category routes events to their storage tables.
type Category string

const (
	// CategoryAccess covers the outcome of authorization decisions.
	CategoryAccess Category = "access"
	// CategorySecurity covers everything that feeds threat intelligence.
	CategorySecurity Category = "security"
)

// Category derives the storage category from the event type. Access
// outcomes land in the access table; everything else is security telemetry.
func (e Event) Category() Category {
	switch e.Type {
	case EventAccessGranted, EventAccessDenied:
		return CategoryAccess
	}
	return CategorySecurity
}

// Alert is a durable suspicious-activity finding produced by the analyzer.
// It is derived state: rebuilding the event buffer rebuilds the alerts.
type Alert struct {
	Type              string
	Severity          Severity
	Description       string
	UserID            string
	IPAddress         string
	Evidence          Details
	RecommendedAction string
	Timestamp         time.Time
}
