package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MsgInvalidFormat is the single caller-visible validation failure message.
// Which pattern or shape check failed is deliberately not exposed; the
// detail lives in Result.Threats for the audit trail only.
const MsgInvalidFormat = "Invalid resource format"

// DefaultBatchMax bounds ValidateBatch when the caller passes no limit.
const DefaultBatchMax = 100

var genericIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Result reports the outcome of identifier validation. SanitizedID is only
// meaningful when Valid is true. Threats lists the injection pattern
// families that matched, for telemetry; callers must never surface it.
type Result struct {
	Valid       bool
	SanitizedID string
	Errors      []string
	Threats     []string
}

// Validate sanitizes and classifies a raw identifier for a resource type.
//
// Threat scanning runs before any shape check: a suspected-malicious
// identifier is rejected outright, never repaired, because identifiers are
// lookup keys rather than display content. On success the identifier is
// canonicalized (UUIDs lowercased, integers reduced to decimal form) so
// Validate(Validate(x).SanitizedID) is idempotent.
//
// Pure function: no I/O, no side effects.
func Validate(raw string, rt ResourceType) Result {
	if raw == "" {
		return invalid(nil)
	}
	if threats := Scan(raw); len(threats) > 0 {
		return invalid(threats)
	}

	switch rt {
	case ResourceUser, ResourcePayment, ResourceCompetitionResult:
		return validateUUID(raw)
	case ResourceEvent:
		return validateEventID(raw)
	default:
		if !genericIDPattern.MatchString(raw) {
			return invalid(nil)
		}
		return Result{Valid: true, SanitizedID: raw}
	}
}

// validateUUID accepts the canonical 36-character form only, case
// insensitive, and rejects the nil UUID. Brace and URN forms that
// uuid.Parse would otherwise accept are not valid identifiers here.
func validateUUID(raw string) Result {
	if len(raw) != 36 {
		return invalid(nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return invalid(nil)
	}
	return Result{Valid: true, SanitizedID: strings.ToLower(raw)}
}

// validateEventID accepts positive decimal integers bounded below the
// 32-bit signed overflow so downstream stores with int columns stay safe.
func validateEventID(raw string) Result {
	for _, r := range raw {
		if r < '0' || r > '9' {
			return invalid(nil)
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt32 {
		return invalid(nil)
	}
	return Result{Valid: true, SanitizedID: strconv.FormatInt(n, 10)}
}

// ValidateBatch validates a slice of identifiers of one resource type.
// maxCount <= 0 means DefaultBatchMax. Oversized batches are rejected
// before any per-item work. Duplicates are reported rather than silently
// dropped; the batch fails closed when any entry fails.
func ValidateBatch(ids []string, rt ResourceType, maxCount int) Result {
	if maxCount <= 0 {
		maxCount = DefaultBatchMax
	}
	if len(ids) == 0 {
		return Result{Valid: false, Errors: []string{"empty identifier list"}}
	}
	if len(ids) > maxCount {
		return Result{Valid: false, Errors: []string{fmt.Sprintf("too many identifiers: %d exceeds maximum of %d", len(ids), maxCount)}}
	}

	out := Result{Valid: true}
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		r := Validate(raw, rt)
		if !r.Valid {
			out.Valid = false
			out.Errors = append(out.Errors, r.Errors...)
			out.Threats = append(out.Threats, r.Threats...)
			continue
		}
		if seen[r.SanitizedID] {
			out.Valid = false
			out.Errors = append(out.Errors, fmt.Sprintf("duplicate identifier: %s", r.SanitizedID))
			continue
		}
		seen[r.SanitizedID] = true
	}
	return out
}

func invalid(threats []string) Result {
	return Result{Valid: false, Errors: []string{MsgInvalidFormat}, Threats: threats}
}
