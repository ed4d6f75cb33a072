package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRoleTable(t *testing.T) {
	table := DefaultRoleTable()

	for _, role := range []Role{RoleOwner, RoleAdmin} {
		perms := table.PermissionsForRole(role)
		if len(perms) != len(KnownPermissions) {
			t.Fatalf("%s: expected all %d permissions, got %v", role, len(KnownPermissions), perms.Sorted())
		}
	}
	viewer := table.PermissionsForRole(RoleViewer)
	if len(viewer) != 1 || !viewer.Has(PermReadTask) {
		t.Fatalf("viewer should only read tasks, got %v", viewer.Sorted())
	}
	if !table.RoleHasPermission("owner", PermDeleteTask) {
		t.Fatalf("role lookup should ignore case")
	}
}

func TestUnknownRoleGrantsNothing(t *testing.T) {
	table := DefaultRoleTable()

	perms := table.PermissionsForRole("NONEXISTENT")
	if perms == nil {
		t.Fatalf("expected empty set, got nil")
	}
	if len(perms) != 0 {
		t.Fatalf("expected no permissions, got %v", perms.Sorted())
	}
	for _, p := range KnownPermissions {
		if table.RoleHasPermission("NONEXISTENT", p) {
			t.Fatalf("unknown role must not grant %s", p)
		}
	}
}

func TestPermissionsForRolesUnion(t *testing.T) {
	table := DefaultRoleTable()

	union := table.PermissionsForRoles([]Role{RoleViewer, RoleAdmin, "GHOST"})
	admin := table.PermissionsForRole(RoleAdmin)
	if len(union) != len(admin) {
		t.Fatalf("expected union to equal admin set, got %v", union.Sorted())
	}
	count := 0
	for _, p := range union.Sorted() {
		if p == PermReadTask {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("READ_TASK should appear once, got %d", count)
	}
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	table := DefaultRoleTable()
	perms := table.PermissionsForRole(RoleViewer)
	perms[PermDeleteTask] = struct{}{}

	if table.RoleHasPermission(RoleViewer, PermDeleteTask) {
		t.Fatalf("mutating a returned set must not change the table")
	}
}

func TestLoadRoleTableRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":              "roles: {}\n",
		"no permissions":     "roles:\n  AUDITOR: []\n",
		"unknown permission": "roles:\n  AUDITOR: [LAUNCH_ROCKETS]\n",
		"unknown field":      "roles:\n  OWNER: [READ_TASK]\nextra: true\n",
		"duplicate by case":  "roles:\n  owner: [READ_TASK]\n  OWNER: [READ_TASK]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRoleTable(strings.NewReader(doc))
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestLoadRoleTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	doc := "roles:\n  editor: [read_task, update_task]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	table, err := LoadRoleTableFile(path)
	if err != nil {
		t.Fatalf("LoadRoleTableFile: %v", err)
	}
	if !table.RoleHasPermission("EDITOR", PermUpdateTask) {
		t.Fatalf("expected editor to update tasks")
	}
	if table.RoleHasPermission(RoleOwner, PermReadTask) {
		t.Fatalf("owner is not part of this table")
	}
	if got := table.Roles(); len(got) != 1 || got[0] != "EDITOR" {
		t.Fatalf("unexpected roles: %v", got)
	}
}
