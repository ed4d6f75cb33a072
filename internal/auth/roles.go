package auth

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tasktrail.io/internal/obs"
)

//go:embed roles.yaml
var defaultRolesYAML []byte

type roleFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// RoleTable maps role names to the permissions they grant. It is read-only
// after construction and safe for concurrent use.
type RoleTable struct {
	grants map[Role]PermissionSet
}

// DefaultRoleTable returns the built-in OWNER/ADMIN/VIEWER table.
func DefaultRoleTable() *RoleTable {
	table, err := LoadRoleTable(bytes.NewReader(defaultRolesYAML))
	if err != nil {
		panic(fmt.Sprintf("auth: embedded role table is invalid: %v", err))
	}
	return table
}

// LoadRoleTableFile reads a role table from a YAML file.
func LoadRoleTableFile(path string) (*RoleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auth: open role table: %w", err)
	}
	defer f.Close()
	return LoadRoleTable(f)
}

// LoadRoleTable parses a YAML role table. Every role must grant at least one
// permission and every permission must be known.
func LoadRoleTable(r io.Reader) (*RoleTable, error) {
	var doc roleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode role table: %v", ErrInvalidInput, err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("%w: role table defines no roles", ErrInvalidInput)
	}
	grants := make(map[Role]PermissionSet, len(doc.Roles))
	for name, perms := range doc.Roles {
		role := NormalizeRole(name)
		if role == "" {
			return nil, fmt.Errorf("%w: blank role name", ErrInvalidInput)
		}
		if _, dup := grants[role]; dup {
			return nil, fmt.Errorf("%w: role %s defined twice", ErrInvalidInput, role)
		}
		set := make(PermissionSet, len(perms))
		for _, raw := range perms {
			p := Permission(strings.ToUpper(strings.TrimSpace(raw)))
			if !isKnownPermission(p) {
				return nil, fmt.Errorf("%w: role %s grants unknown permission %q", ErrInvalidInput, role, raw)
			}
			set[p] = struct{}{}
		}
		if len(set) == 0 {
			return nil, fmt.Errorf("%w: role %s grants no permissions", ErrInvalidInput, role)
		}
		grants[role] = set
	}
	return &RoleTable{grants: grants}, nil
}

// PermissionsForRole returns a copy of the permissions granted by role.
// A role missing from the table grants nothing: the result is an empty set,
// never an error.
func (t *RoleTable) PermissionsForRole(role Role) PermissionSet {
	granted, ok := t.grants[NormalizeRole(string(role))]
	if !ok {
		obs.AuthzUnknownRoles.Inc()
		return PermissionSet{}
	}
	out := make(PermissionSet, len(granted))
	out.Union(granted)
	return out
}

// PermissionsForRoles returns the de-duplicated union over roles.
func (t *RoleTable) PermissionsForRoles(roles []Role) PermissionSet {
	out := PermissionSet{}
	for _, role := range roles {
		out.Union(t.PermissionsForRole(role))
	}
	return out
}

// RoleHasPermission reports whether role grants p.
func (t *RoleTable) RoleHasPermission(role Role, p Permission) bool {
	return t.PermissionsForRole(role).Has(p)
}

// Roles lists the configured role names in lexical order.
func (t *RoleTable) Roles() []Role {
	out := make([]Role, 0, len(t.grants))
	for r := range t.grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
