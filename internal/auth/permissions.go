package auth

import (
	"sort"
	"strings"
)

// Permission is an atomic capability. Checks are exact set membership.
type Permission string

const (
	PermCreateTask   Permission = "CREATE_TASK"
	PermReadTask     Permission = "READ_TASK"
	PermUpdateTask   Permission = "UPDATE_TASK"
	PermDeleteTask   Permission = "DELETE_TASK"
	PermViewAuditLog Permission = "VIEW_AUDIT_LOG"
)

// KnownPermissions lists every permission a role table may grant.
var KnownPermissions = []Permission{
	PermCreateTask,
	PermReadTask,
	PermUpdateTask,
	PermDeleteTask,
	PermViewAuditLog,
}

// Role names a bundle of permissions.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleViewer Role = "VIEWER"
)

// NormalizeRole upper-cases and trims a role name.
func NormalizeRole(name string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(name)))
}

func isKnownPermission(p Permission) bool {
	for _, known := range KnownPermissions {
		if known == p {
			return true
		}
	}
	return false
}

// PermissionSet is a de-duplicated collection of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set, dropping blanks and duplicates.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union adds every member of other to s.
func (s PermissionSet) Union(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted members as plain strings.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}
