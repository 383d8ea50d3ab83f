// Package ownership implements layer 3 of the access control pipeline:
// classifying a principal's relationship to a specific resource instance by
// reading the resource's owner and participant columns from the backing
// store. Results are derived per request and never cached; ownership can
// change between requests.
package ownership

import (
	"errors"
	"fmt"
)

// Store errors. ErrNotFound is the recognizable absent-row signal required
// by the store contract; ErrRowDenied is an authorization-shaped store
// error, meaning the row-level security layer (layer 4) refused the read.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrRowDenied = errors.New("row-level security denied access")
)

// ResourceType is the closed set of ownable resource types. Adding a type
// means adding a constant and a Descriptor case; the switch in Descriptor
// keeps the mapping from silently falling through for a forgotten entry.
type ResourceType int

const (
	Listing ResourceType = iota
	Order
	Message
	Dispute
	Profile
	SupportTicket
)

// String returns the wire/log name of the resource type.
func (t ResourceType) String() string {
	switch t {
	case Listing:
		return "listing"
	case Order:
		return "order"
	case Message:
		return "message"
	case Dispute:
		return "dispute"
	case Profile:
		return "profile"
	case SupportTicket:
		return "support_ticket"
	default:
		return fmt.Sprintf("resource(%d)", int(t))
	}
}

// Descriptor maps a resource type onto its backing table: exactly one
// owner column, zero or more participant columns that grant lesser access.
type Descriptor struct {
	Table              string
	IDColumn           string
	OwnerColumn        string
	ParticipantColumns []string
}

// Descriptor returns the ownership descriptor for the resource type, or an
// error for a type outside the closed set.
func (t ResourceType) Descriptor() (Descriptor, error) {
	switch t {
	case Listing:
		return Descriptor{Table: "listings", IDColumn: "id", OwnerColumn: "seller_id"}, nil
	case Order:
		return Descriptor{
			Table:              "orders",
			IDColumn:           "id",
			OwnerColumn:        "buyer_id",
			ParticipantColumns: []string{"seller_id"},
		}, nil
	case Message:
		return Descriptor{
			Table:              "messages",
			IDColumn:           "id",
			OwnerColumn:        "sender_id",
			ParticipantColumns: []string{"recipient_id"},
		}, nil
	case Dispute:
		return Descriptor{
			Table:              "disputes",
			IDColumn:           "id",
			OwnerColumn:        "complainant_id",
			ParticipantColumns: []string{"respondent_id", "assigned_moderator_id"},
		}, nil
	case Profile:
		return Descriptor{Table: "profiles", IDColumn: "user_id", OwnerColumn: "user_id"}, nil
	case SupportTicket:
		return Descriptor{
			Table:              "support_tickets",
			IDColumn:           "id",
			OwnerColumn:        "user_id",
			ParticipantColumns: []string{"assignee_id"},
		}, nil
	default:
		return Descriptor{}, fmt.Errorf("no ownership descriptor for %s", t)
	}
}

// AccessLevel classifies a principal's relationship to a resource.
type AccessLevel string

const (
	AccessNone  AccessLevel = "none"
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessFull  AccessLevel = "full"
)

var accessRank = map[AccessLevel]int{
	AccessNone:  0,
	AccessRead:  1,
	AccessWrite: 2,
	AccessFull:  3,
}

// AtLeast reports whether l grants at least the access of m. Unknown
// levels rank below AccessNone.
func (l AccessLevel) AtLeast(m AccessLevel) bool {
	lr, ok := accessRank[l]
	if !ok {
		return false
	}
	return lr >= accessRank[m]
}

// Result is the outcome of one ownership check.
type Result struct {
	IsOwner       bool
	IsParticipant bool
	AccessLevel   AccessLevel

	// Reason is set for AccessNone outcomes ("not found", "lookup failed",
	// "not a party to resource").
	Reason string
}
