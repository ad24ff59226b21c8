// Package authz decides, per resource type and operation, whether a caller
// may act on a record. Decisions carry restriction tags consumed by
// downstream field redaction; they never carry errors, because the engine
// is fail-closed: every internal fault resolves to a deny.
package authz

import "time"

// Operation is the action the caller wants to perform.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsValid checks if the operation is one of the supported enum values.
func (o Operation) IsValid() bool {
	switch o {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// String returns the string representation.
func (o Operation) String() string {
	return string(o)
}

// Role is the caller's membership tier, supplied by the identity provider.
// Credentials are never examined here.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// CallerContext is the verified identity and request context for one
// authorization check. Immutable per request.
type CallerContext struct {
	UserID         string
	Role           Role
	OrganizationID string
	IPAddress      string
	UserAgent      string
	Operation      Operation
	Timestamp      time.Time
}

// IsAdmin reports whether the caller holds the platform administrator role.
func (c CallerContext) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Restriction tags attached to allow decisions. They record why access was
// granted so redaction logic downstream can narrow the response.
const (
	TagOwnProfile         = "own_profile"
	TagAdminBypass        = "admin_bypass"
	TagEventOwner         = "event_owner"
	TagPublicReadOnly     = "public_read_only"
	TagOwnPayment         = "own_payment"
	TagOwnResult          = "own_result"
	TagOrganizationMember = "organization_member"
)

// Caller-visible denial messages. Ownership denials on enumerable
// resources stay generic; lifecycle guards name the rule, since the caller
// already knows the record exists.
const (
	MsgCannotAccessUsers       = "Cannot access other users"
	MsgInsufficientPermissions = "Insufficient permissions"
	MsgCannotAccessPayments    = "Cannot access other users' payment information"
	MsgPaymentLifecycle        = "Cannot modify completed or refunded payments"
	MsgVerifiedResult          = "Cannot delete verified results"
	MsgResourceNotFound        = "Resource not found"
	MsgAccessDenied            = "access denied"
	MsgInternalError           = "internal error"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed      bool
	Reason       string
	Restrictions []string
}

// Allow builds an allow decision carrying the given restriction tags.
func Allow(tags ...string) Decision {
	return Decision{Allowed: true, Restrictions: tags}
}

// Deny builds a deny decision with a caller-visible reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// HasRestriction reports whether the decision carries the tag.
func (d Decision) HasRestriction(tag string) bool {
	for _, t := range d.Restrictions {
		if t == tag {
			return true
		}
	}
	return false
}

// Payment lifecycle states that freeze a record against modification.
const (
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
)

// Record is the projection of a stored resource the policies evaluate.
// The record-lookup collaborator fills only the fields that exist for the
// resource type; zero values mean not applicable.
type Record struct {
	ID             string
	OwnerID        string
	OrganizationID string
	IsPublic       bool
	Status         string
	Verified       bool
}
