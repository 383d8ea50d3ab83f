// Package authz defines the static permission table, ordered role levels,
// and the pure in-memory evaluation used by layer 2 of the access control
// pipeline.
package authz

// Permission is an atomic capability identifier.
type Permission string

// The permission table. Adding a capability means adding it here and
// granting it below; call sites only ever reference these constants.
const (
	PermAdminDashboard    Permission = "admin.dashboard"
	PermAdminUsers        Permission = "admin.users.manage"
	PermAdminCompliance   Permission = "admin.compliance.view"
	PermSellerDashboard   Permission = "seller.dashboard"
	PermSellerListings    Permission = "seller.listings.manage"
	PermSellerOrders      Permission = "seller.orders.manage"
	PermProfileOwnView    Permission = "profile.own.view"
	PermProfileOwnEdit    Permission = "profile.own.edit"
	PermOrdersOwnView     Permission = "orders.own.view"
	PermMessagesOwnView   Permission = "messages.own.view"
	PermDisputesOwnView   Permission = "disputes.own.view"
	PermDisputesModerate  Permission = "disputes.moderate"
	PermListingsPublish   Permission = "listings.publish"
	PermCheckoutInitiate  Permission = "checkout.initiate"
)

var allPermissions = map[Permission]struct{}{
	PermAdminDashboard:   {},
	PermAdminUsers:       {},
	PermAdminCompliance:  {},
	PermSellerDashboard:  {},
	PermSellerListings:   {},
	PermSellerOrders:     {},
	PermProfileOwnView:   {},
	PermProfileOwnEdit:   {},
	PermOrdersOwnView:    {},
	PermMessagesOwnView:  {},
	PermDisputesOwnView:  {},
	PermDisputesModerate: {},
	PermListingsPublish:  {},
	PermCheckoutInitiate: {},
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	_, ok := allPermissions[p]
	return ok
}

// RoleLevel is an ordered privilege tier. A principal passes a role check
// when its level is >= the required level.
type RoleLevel int

const (
	RoleGuest     RoleLevel = 0
	RoleMember    RoleLevel = 1
	RoleSeller    RoleLevel = 2
	RoleModerator RoleLevel = 3
	RoleAdmin     RoleLevel = 4
)

// String returns the tier name for logs.
func (r RoleLevel) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleSeller:
		return "seller"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// roleGrants is the default permission set per tier. Tiers are cumulative.
var roleGrants = map[RoleLevel][]Permission{
	RoleMember: {
		PermProfileOwnView, PermProfileOwnEdit,
		PermOrdersOwnView, PermMessagesOwnView,
		PermDisputesOwnView, PermCheckoutInitiate,
	},
	RoleSeller: {
		PermSellerDashboard, PermSellerListings,
		PermSellerOrders, PermListingsPublish,
	},
	RoleModerator: {
		PermDisputesModerate,
	},
	RoleAdmin: {
		PermAdminDashboard, PermAdminUsers, PermAdminCompliance,
	},
}

// GrantsFor returns the cumulative default permissions for a role level.
func GrantsFor(level RoleLevel) []Permission {
	var out []Permission
	for tier := RoleMember; tier <= RoleAdmin && tier <= level; tier++ {
		out = append(out, roleGrants[tier]...)
	}
	return out
}
