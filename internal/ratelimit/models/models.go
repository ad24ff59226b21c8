// Package models defines the rate limiting types shared by the stores and
// the service.
package models

import "time"

// Class categorizes operations for differentiated rate limiting.
type Class string

const (
	// ClassLogin: credential-adjacent endpoints, tightest limit.
	ClassLogin Class = "login"
	// ClassAdmin: administrative operations.
	ClassAdmin Class = "admin"
	// ClassAPI: general authorized resource access.
	ClassAPI Class = "api"
	// ClassCustom: caller-supplied limit and window.
	ClassCustom Class = "custom"
)

// IsValid checks if the class is one of the supported enum values.
func (c Class) IsValid() bool {
	switch c {
	case ClassLogin, ClassAdmin, ClassAPI, ClassCustom:
		return true
	}
	return false
}

// String returns the string representation.
func (c Class) String() string {
	return string(c)
}

// Limit pairs a request budget with its window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when denied
}

// Window is the immutable per-key counter snapshot. Stores replace the
// snapshot rather than mutating it in place so readers never observe a
// half-updated window.
type Window struct {
	Count       int
	WindowStart time.Time
}
