package authz

// Principal is an authenticated identity with its resolved role level and
// permission set. Built once per request from the session/token claims.
type Principal struct {
	ID        string
	RoleLevel RoleLevel

	// permissions is the resolved set; lookups are O(1).
	permissions map[Permission]struct{}
}

// NewPrincipal constructs a principal with explicit permissions.
func NewPrincipal(id string, level RoleLevel, perms ...Permission) *Principal {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return &Principal{ID: id, RoleLevel: level, permissions: set}
}

// NewPrincipalWithDefaults constructs a principal carrying the default
// grants for its role level.
func NewPrincipalWithDefaults(id string, level RoleLevel) *Principal {
	return NewPrincipal(id, level, GrantsFor(level)...)
}

// IsAdmin reports whether the principal sits at the admin tier. This is
// the legacy coarse check kept for older call sites; new code should
// require specific permissions.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.RoleLevel >= RoleAdmin
}

// IsSeller reports whether the principal sits at or above the seller tier.
// Legacy coarse check, same caveat as IsAdmin.
func (p *Principal) IsSeller() bool {
	return p != nil && p.RoleLevel >= RoleSeller
}

// Has reports whether the principal holds the permission.
func (p *Principal) Has(perm Permission) bool {
	if p == nil {
		return false
	}
	_, ok := p.permissions[perm]
	return ok
}

// HasAll reports whether the principal holds every permission listed.
func (p *Principal) HasAll(perms ...Permission) bool {
	for _, perm := range perms {
		if !p.Has(perm) {
			return false
		}
	}
	return true
}

// HasAny reports whether the principal holds at least one listed
// permission.
func (p *Principal) HasAny(perms ...Permission) bool {
	for _, perm := range perms {
		if p.Has(perm) {
			return true
		}
	}
	return false
}

// Permissions returns the principal's permission set as a slice, for logs.
func (p *Principal) Permissions() []Permission {
	if p == nil {
		return nil
	}
	out := make([]Permission, 0, len(p.permissions))
	for perm := range p.permissions {
		out = append(out, perm)
	}
	return out
}
