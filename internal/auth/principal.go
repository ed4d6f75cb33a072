package auth

import (
	"strings"
	"time"
)

// Principal represents the authenticated caller of one request: who they are,
// which organization their credentials belong to, and what they may do there.
type Principal struct {
	UserID         string
	Email          string
	OrganizationID string
	Roles          []Role
	Permissions    PermissionSet
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// NewPrincipal constructs a principal with de-duplicated roles and permissions.
func NewPrincipal(userID, email, organizationID string, roles []Role, perms []Permission) Principal {
	return Principal{
		UserID:         strings.TrimSpace(userID),
		Email:          strings.TrimSpace(email),
		OrganizationID: strings.TrimSpace(organizationID),
		Roles:          dedupeRoles(roles),
		Permissions:    NewPermissionSet(perms...),
	}
}

// HasPermission reports whether the principal carries p.
func (p Principal) HasPermission(perm Permission) bool {
	return p.Permissions.Has(perm)
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role Role) bool {
	role = NormalizeRole(string(role))
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// WithPermissions returns a copy of p carrying perms instead of its current set.
func (p Principal) WithPermissions(perms PermissionSet) Principal {
	cp := p
	cp.Roles = append([]Role(nil), p.Roles...)
	cp.Permissions = make(PermissionSet, len(perms))
	cp.Permissions.Union(perms)
	return cp
}

// RoleStrings returns the roles as plain strings in assignment order.
func (p Principal) RoleStrings() []string {
	out := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		out[i] = string(r)
	}
	return out
}

func dedupeRoles(roles []Role) []Role {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[Role]struct{}, len(roles))
	var normalized []Role
	for _, role := range roles {
		role = NormalizeRole(string(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
