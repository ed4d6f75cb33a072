package auth

import (
	"context"
	"fmt"
	"strings"
)

// AssignmentStore looks up role assignments. Implementations return an empty
// slice, not ErrNotFound, when the user holds nothing in the organization.
type AssignmentStore interface {
	AssignmentsFor(ctx context.Context, userID, organizationID string) ([]Assignment, error)
}

// PermissionSource is one strategy for working out what a principal may do.
type PermissionSource interface {
	Name() string
	Permissions(ctx context.Context, p Principal) (PermissionSet, error)
}

// ClaimsSource trusts the permissions embedded in the verified token.
type ClaimsSource struct{}

func (ClaimsSource) Name() string { return "claims" }

// Permissions returns the token's permissions as-is; they may be stale.
func (ClaimsSource) Permissions(_ context.Context, p Principal) (PermissionSet, error) {
	out := make(PermissionSet, len(p.Permissions))
	out.Union(p.Permissions)
	return out, nil
}

// AssignmentSource resolves permissions from the assignment store on every call.
type AssignmentSource struct {
	store AssignmentStore
	table *RoleTable
}

// NewAssignmentSource builds the live lookup strategy.
func NewAssignmentSource(store AssignmentStore, table *RoleTable) *AssignmentSource {
	return &AssignmentSource{store: store, table: table}
}

func (s *AssignmentSource) Name() string { return "assignments" }

// Permissions resolves p's permissions inside p's own organization.
func (s *AssignmentSource) Permissions(ctx context.Context, p Principal) (PermissionSet, error) {
	_, perms, err := s.resolve(ctx, p.UserID, p.OrganizationID)
	return perms, err
}

func (s *AssignmentSource) resolve(ctx context.Context, userID, organizationID string) ([]Role, PermissionSet, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return nil, PermissionSet{}, nil
	}
	assignments, err := s.store.AssignmentsFor(ctx, userID, organizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load assignments: %w", err)
	}
	roles := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		// Stores filter by organization already; this keeps a misbehaving
		// store from leaking another tenant's roles.
		if a.OrganizationID != organizationID || a.UserID != userID {
			continue
		}
		roles = append(roles, a.Role)
	}
	roles = dedupeRoles(roles)
	return roles, s.table.PermissionsForRoles(roles), nil
}

// Resolver applies the precedence rule between the two strategies: token
// claims when present and non-empty, otherwise the live assignment lookup.
type Resolver struct {
	claims PermissionSource
	live   *AssignmentSource
}

// NewResolver wires both strategies.
func NewResolver(store AssignmentStore, table *RoleTable) *Resolver {
	return &Resolver{
		claims: ClaimsSource{},
		live:   NewAssignmentSource(store, table),
	}
}

// Resolve returns p with the roles and permissions the precedence rule picks,
// and the name of the strategy that produced them. Roles and permissions
// always come from the same strategy.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (Principal, string, error) {
	if len(p.Permissions) > 0 {
		perms, err := r.claims.Permissions(ctx, p)
		if err != nil {
			return Principal{}, r.claims.Name(), err
		}
		if len(perms) > 0 {
			return p.WithPermissions(perms), r.claims.Name(), nil
		}
	}
	fresh, err := r.ResolveFresh(ctx, p)
	return fresh, r.live.Name(), err
}

// Permissions returns p's effective permissions and the name of the strategy
// that produced them.
func (r *Resolver) Permissions(ctx context.Context, p Principal) (PermissionSet, string, error) {
	resolved, source, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, source, err
	}
	return resolved.Permissions, source, nil
}

// ResolveFresh always goes to the assignment store, ignoring token claims.
func (r *Resolver) ResolveFresh(ctx context.Context, p Principal) (Principal, error) {
	roles, perms, err := r.live.resolve(ctx, p.UserID, p.OrganizationID)
	if err != nil {
		return Principal{}, err
	}
	out := p.WithPermissions(perms)
	out.Roles = roles
	return out, nil
}

// ResolveRoles returns the user's roles in organizationID, in assignment order.
// Roles held in other organizations are not visible.
func (r *Resolver) ResolveRoles(ctx context.Context, userID, organizationID string) ([]Role, error) {
	roles, _, err := r.live.resolve(ctx, userID, organizationID)
	return roles, err
}

// ResolvePermissions returns the union of permissions granted by the user's
// roles in organizationID. No assignments yields an empty set.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID, organizationID string) (PermissionSet, error) {
	_, perms, err := r.live.resolve(ctx, userID, organizationID)
	return perms, err
}
