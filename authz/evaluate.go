package authz

import "fmt"

// Denial reasons surfaced by Evaluate.
const (
	ReasonPermissionDenied = "permission_denied"
	ReasonRoleInsufficient = "role_insufficient"
)

// Requirement describes the authorization demands of one operation. Zero
// value imposes nothing. All populated checks must pass; they are
// evaluated legacy flags first, then role level, then permissions, and
// the first failure wins.
type Requirement struct {
	// AdminOnly and SellerOnly are legacy coarse flags kept for simpler
	// call sites.
	AdminOnly  bool
	SellerOnly bool

	// MinRoleLevel is the minimum tier required, when > RoleGuest.
	MinRoleLevel RoleLevel

	// Permission is a single required permission.
	Permission Permission

	// AllPermissions must every one be held.
	AllPermissions []Permission

	// AnyPermissions requires at least one to be held.
	AnyPermissions []Permission
}

// Denial describes exactly which check failed. Nil means the requirement
// passed.
type Denial struct {
	// Reason is ReasonPermissionDenied or ReasonRoleInsufficient.
	Reason string

	// Permission is the specific permission that failed, when applicable.
	Permission Permission

	// RequiredLevel is set for role-level failures.
	RequiredLevel RoleLevel

	// Detail is a log-friendly explanation. Never shown to end users.
	Detail string
}

// Evaluate runs the layer-2 checks for principal against req. Pure and
// in-memory; no I/O. A nil principal fails any non-zero requirement.
func Evaluate(p *Principal, req Requirement) *Denial {
	if req.AdminOnly && !p.IsAdmin() {
		return &Denial{
			Reason:        ReasonRoleInsufficient,
			RequiredLevel: RoleAdmin,
			Detail:        "admin flag required",
		}
	}
	if req.SellerOnly && !p.IsSeller() {
		return &Denial{
			Reason:        ReasonRoleInsufficient,
			RequiredLevel: RoleSeller,
			Detail:        "seller flag required",
		}
	}

	if req.MinRoleLevel > RoleGuest {
		level := RoleGuest
		if p != nil {
			level = p.RoleLevel
		}
		if level < req.MinRoleLevel {
			return &Denial{
				Reason:        ReasonRoleInsufficient,
				RequiredLevel: req.MinRoleLevel,
				Detail:        fmt.Sprintf("role level %d required, principal has %d", req.MinRoleLevel, level),
			}
		}
	}

	if req.Permission != "" && !p.Has(req.Permission) {
		return &Denial{
			Reason:     ReasonPermissionDenied,
			Permission: req.Permission,
			Detail:     fmt.Sprintf("missing permission %s", req.Permission),
		}
	}

	for _, perm := range req.AllPermissions {
		if !p.Has(perm) {
			return &Denial{
				Reason:     ReasonPermissionDenied,
				Permission: perm,
				Detail:     fmt.Sprintf("missing permission %s (all-of set)", perm),
			}
		}
	}

	if len(req.AnyPermissions) > 0 && !p.HasAny(req.AnyPermissions...) {
		return &Denial{
			Reason:     ReasonPermissionDenied,
			Permission: req.AnyPermissions[0],
			Detail:     "none of the alternative permissions held",
		}
	}

	return nil
}
