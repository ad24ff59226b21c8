package authz

import (
	"sync"

	"aegis/pkg/domain"
)

// PolicyFunc computes the decision for one resource type. The record is
// never nil: lookup failures are handled before dispatch.
type PolicyFunc func(caller CallerContext, rec *Record) Decision

// Table dispatches authorization by resource type. New resource types are
// added by registering a policy, not by growing a conditional chain.
type Table struct {
	mu       sync.RWMutex
	policies map[domain.ResourceType]PolicyFunc
}

// NewTable returns an empty dispatch table.
func NewTable() *Table {
	return &Table{policies: make(map[domain.ResourceType]PolicyFunc)}
}

// DefaultTable returns a table with the built-in resource policies
// registered.
func DefaultTable() *Table {
	t := NewTable()
	t.Register(domain.ResourceUser, userPolicy)
	t.Register(domain.ResourceEvent, eventPolicy)
	t.Register(domain.ResourcePayment, paymentPolicy)
	t.Register(domain.ResourceCompetitionResult, resultPolicy)
	return t
}

// Register installs or replaces the policy for a resource type.
func (t *Table) Register(rt domain.ResourceType, policy PolicyFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies[rt] = policy
}

// Evaluate runs the registered policy. An unregistered resource type
// denies: absence of a policy is never an implicit allow.
func (t *Table) Evaluate(rt domain.ResourceType, caller CallerContext, rec *Record) Decision {
	t.mu.RLock()
	policy, ok := t.policies[rt]
	t.mu.RUnlock()
	if !ok {
		return Deny(MsgAccessDenied)
	}
	return policy(caller, rec)
}

// self reports whether the caller owns the record.
func self(caller CallerContext, rec *Record) bool {
	return caller.UserID != "" && caller.UserID == rec.OwnerID
}

// userPolicy guards user profiles. Reads extend to members of the caller's
// organization; deletion is reserved for administrators.
func userPolicy(caller CallerContext, rec *Record) Decision {
	if caller.IsAdmin() {
		return Allow(TagAdminBypass)
	}
	if caller.Operation == OpDelete {
		return Deny(MsgInsufficientPermissions)
	}
	if self(caller, rec) {
		return Allow(TagOwnProfile)
	}
	if caller.Operation == OpRead &&
		caller.OrganizationID != "" && caller.OrganizationID == rec.OrganizationID {
		return Allow(TagOrganizationMember)
	}
	return Deny(MsgCannotAccessUsers)
}

// eventPolicy guards events. Public events are world-readable; everything
// else is organizer or admin.
func eventPolicy(caller CallerContext, rec *Record) Decision {
	if caller.IsAdmin() {
		return Allow(TagAdminBypass)
	}
	if self(caller, rec) {
		return Allow(TagEventOwner)
	}
	if caller.Operation == OpRead && rec.IsPublic {
		return Allow(TagPublicReadOnly)
	}
	return Deny(MsgInsufficientPermissions)
}

// paymentPolicy guards payments. Completed and refunded payments are
// frozen against modification regardless of ownership.
func paymentPolicy(caller CallerContext, rec *Record) Decision {
	if caller.IsAdmin() {
		return Allow(TagAdminBypass)
	}
	if caller.Operation != OpRead &&
		(rec.Status == PaymentCompleted || rec.Status == PaymentRefunded) {
		return Deny(MsgPaymentLifecycle)
	}
	if self(caller, rec) {
		return Allow(TagOwnPayment)
	}
	return Deny(MsgCannotAccessPayments)
}

// resultPolicy guards competition results. Verified results are immutable
// for everyone but administrators.
func resultPolicy(caller CallerContext, rec *Record) Decision {
	if caller.IsAdmin() {
		return Allow(TagAdminBypass)
	}
	switch caller.Operation {
	case OpRead:
		if self(caller, rec) || rec.IsPublic {
			return Allow(TagOwnResult)
		}
	case OpCreate, OpUpdate:
		if self(caller, rec) && !rec.Verified {
			return Allow(TagOwnResult)
		}
	case OpDelete:
		if rec.Verified {
			return Deny(MsgVerifiedResult)
		}
		if self(caller, rec) {
			return Allow(TagOwnResult)
		}
	}
	return Deny(MsgInsufficientPermissions)
}
