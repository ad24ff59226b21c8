package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborators return
// these (optionally wrapped) so the engine can translate them into decisions
// without inspecting error strings.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the backing store
// - ErrInvalidState: record in wrong state for the requested operation
// - ErrUnavailable: store or collaborator temporarily unavailable
//
// Validation failures never become errors at all; they are carried in the
// validation result so the engine stays fail-closed without unwinding.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
