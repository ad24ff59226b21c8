// Package domain holds the resource identifier types shared by the
// authorization engine and its collaborators. Parsing and validation live
// here because identifiers cross a trust boundary: everything arriving from
// a caller is hostile until it has been through Validate.
package domain

// ResourceType classifies the records the platform protects.
type ResourceType string

const (
	ResourceUser              ResourceType = "user"
	ResourceEvent             ResourceType = "event"
	ResourcePayment           ResourceType = "payment"
	ResourceCompetitionResult ResourceType = "competition_result"
)

// IsValid checks if the resource type is one of the supported enum values.
func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceUser, ResourceEvent, ResourcePayment, ResourceCompetitionResult:
		return true
	}
	return false
}

// String returns the string representation.
func (t ResourceType) String() string {
	return string(t)
}

// ResourceIdentifier pairs a resource type with a raw, untrusted identifier.
// The ID field must not be used as a lookup key until Validate has produced
// a sanitized form.
type ResourceIdentifier struct {
	Type ResourceType
	ID   string
}
