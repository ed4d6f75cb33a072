package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	svc    *Service
	tasks  *MemoryStore
	audits *audit.MemoryStore
	rec    *audit.Recorder
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	assignments := auth.NewMemoryStore()
	resolver := auth.NewResolver(assignments, auth.DefaultRoleTable())
	tasks := NewMemoryStore()
	audits := audit.NewMemoryStore()
	rec := audit.NewRecorder(audits, audit.WithClock(clock.now))
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return fixture{
		svc:    NewService(tasks, auth.NewEngine(resolver), rec, opts...),
		tasks:  tasks,
		audits: audits,
		rec:    rec,
	}
}

// member builds a principal whose token carries the permissions of roles.
func member(userID, org string, roles ...auth.Role) auth.Principal {
	perms := auth.DefaultRoleTable().PermissionsForRoles(roles)
	return auth.NewPrincipal(userID, userID+"@example.test", org, roles, perms.Sorted())
}

func (f fixture) entries(t *testing.T, org string) []audit.Entry {
	t.Helper()
	out, err := f.rec.Query(context.Background(), org, audit.Filter{})
	require.NoError(t, err)
	return out
}

func strPtr(s string) *string { return &s }

func TestCreateDefaultsAndAudits(t *testing.T) {
	f := newFixture(t)
	owner := member("u-owner", "org-a", auth.RoleOwner)

	created, err := f.svc.Create(context.Background(), owner, CreateInput{Title: "  Ship release  ", Description: "cut the tag"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ship release", created.Title)
	assert.Equal(t, StatusTodo, created.Status)
	assert.Equal(t, DefaultCategory, created.Category)
	assert.Equal(t, "org-a", created.OrganizationID)
	assert.Equal(t, "u-owner", created.CreatedByID)

	entries := f.entries(t, "org-a")
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.ActionCreate, e.Action)
	assert.Equal(t, audit.ResourceTask, e.Resource)
	assert.Equal(t, created.ID, e.ResourceID)
	assert.Equal(t, "u-owner", e.UserID)
	assert.Equal(t, "Ship release", e.Changes["title"])
	assert.Equal(t, "todo", e.Changes["status"])
}

func TestCreateValidatesBeforeAuthorizing(t *testing.T) {
	f := newFixture(t)
	stranger := auth.NewPrincipal("u-x", "", "org-a", nil, nil)

	cases := []CreateInput{
		{Title: "   "},
		{Title: "ok", Status: "blocked"},
		{Title: strings.Repeat("x", 256)},
	}
	for _, in := range cases {
		_, err := f.svc.Create(context.Background(), stranger, in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, f.audits.Len())
}

func TestCreateRequiresPermission(t *testing.T) {
	f := newFixture(t)
	viewer := member("u-viewer", "org-a", auth.RoleViewer)

	_, err := f.svc.Create(context.Background(), viewer, CreateInput{Title: "nope"})
	require.ErrorIs(t, err, auth.ErrForbidden)
	reason, ok := auth.DenyReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, auth.DenyMissingPermission, reason)
	assert.Zero(t, f.audits.Len())
}

func TestListScopesToOrganizationAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := member("u-a", "org-a", auth.RoleAdmin)
	b := member("u-b", "org-b", auth.RoleAdmin)

	first, err := f.svc.Create(ctx, a, CreateInput{Title: "one", Category: "Ops"})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, a, CreateInput{Title: "two", Status: "done"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, b, CreateInput{Title: "foreign"})
	require.NoError(t, err)
	before := f.audits.Len()

	all, err := f.svc.List(ctx, a, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	done, err := f.svc.List(ctx, a, ListFilter{Status: StatusDone})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, second.ID, done[0].ID)

	ops, err := f.svc.List(ctx, a, ListFilter{Category: "Ops"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, first.ID, ops[0].ID)

	none, err := f.svc.List(ctx, a, ListFilter{Category: "Personal"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.svc.List(ctx, a, ListFilter{Status: "later"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, f.audits.Len(), "listing must not audit")
}

func TestGetAuditsReadAndIsolatesOrganizations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := member("u-owner", "org-a", auth.RoleOwner)
	viewer := member("u-viewer", "org-a", auth.RoleViewer)
	outsider := member("u-b", "org-b", auth.RoleOwner)

	created, err := f.svc.Create(ctx, owner, CreateInput{Title: "read me"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, viewer, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	entries := f.entries(t, "org-a")
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionRead, entries[0].Action)
	assert.Equal(t, "u-viewer", entries[0].UserID)
	assert.Empty(t, entries[0].Changes)

	_, err = f.svc.Get(ctx, outsider, created.ID)
	reason, ok := auth.DenyReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, auth.DenyResourceOutsideOrg, reason)

	_, err = f.svc.Get(ctx, viewer, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Get(ctx, viewer, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, f.entries(t, "org-a"), 2)
}

func TestNotFoundReportedOnlyAfterPermission(t *testing.T) {
	f := newFixture(t)
	nobody := auth.NewPrincipal("u-none", "", "org-a", nil, nil)

	_, err := f.svc.Get(context.Background(), nobody, "missing")
	require.ErrorIs(t, err, auth.ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = f.svc.Delete(context.Background(), nobody, "missing")
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestUpdateRecordsOnlyChangedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := member("u-admin", "org-a", auth.RoleAdmin)

	created, err := f.svc.Create(ctx, admin, CreateInput{Title: "draft", Description: "body"})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, admin, created.ID, UpdateInput{Title: strPtr("final"), Description: strPtr("body")})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	entries := f.entries(t, "org-a")
	require.Len(t, entries, 2)
	e := entries[0]
	assert.Equal(t, audit.ActionUpdate, e.Action)
	require.Len(t, e.Changes, 1)
	assert.Equal(t, audit.Change{Old: "draft", New: "final"}, e.Changes["title"])

	stored, err := f.tasks.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", stored.Title)
}

func TestUpdateRejectsEmptyAndInvalidBodies(t *testing.T) {
	f := newFixture(t)
	owner := member("u-owner", "org-a", auth.RoleOwner)

	for _, in := range []UpdateInput{{}, {Status: strPtr("paused")}, {Title: strPtr("")}, {Category: strPtr(" ")}} {
		_, err := f.svc.Update(context.Background(), owner, "any", in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestUpdateRejectsBlankOnlyBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := member("u-owner", "org-a", auth.RoleOwner)

	created, err := f.svc.Create(ctx, owner, CreateInput{Title: "draft", Description: "body"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, owner, created.ID, UpdateInput{Description: strPtr("")})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "at least one field must be provided for update")
	require.Len(t, f.entries(t, "org-a"), 1)

	updated, err := f.svc.Update(ctx, owner, created.ID, UpdateInput{Status: strPtr("done"), Description: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, updated.Status)
	assert.Empty(t, updated.Description)
}

func TestOwnershipRules(t *testing.T) {
	ctx := context.Background()
	creator := member("u-viewer", "org-a", auth.RoleViewer)
	creator = creator.WithPermissions(auth.NewPermissionSet(auth.PermReadTask, auth.PermCreateTask, auth.PermUpdateTask, auth.PermDeleteTask))
	otherViewer := member("u-viewer2", "org-a", auth.RoleViewer)
	otherViewer = otherViewer.WithPermissions(creator.Permissions)
	admin := member("u-admin", "org-a", auth.RoleAdmin)
	owner := member("u-owner", "org-a", auth.RoleOwner)

	tests := []struct {
		name    string
		actor   auth.Principal
		delete  bool
		allowed bool
	}{
		{"creator updates", creator, false, true},
		{"other viewer updates", otherViewer, false, false},
		{"admin updates", admin, false, true},
		{"owner updates", owner, false, true},
		{"creator deletes", creator, true, true},
		{"other viewer deletes", otherViewer, true, false},
		{"admin deletes", admin, true, false},
		{"owner deletes", owner, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			created, err := f.svc.Create(ctx, creator, CreateInput{Title: "mine"})
			require.NoError(t, err)

			if tc.delete {
				err = f.svc.Delete(ctx, tc.actor, created.ID)
			} else {
				_, err = f.svc.Update(ctx, tc.actor, created.ID, UpdateInput{Status: strPtr("in-progress")})
			}
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, 2, f.audits.Len())
				return
			}
			reason, ok := auth.DenyReasonOf(err)
			require.True(t, ok, "expected denial, got %v", err)
			assert.Equal(t, auth.DenyInsufficientOwnership, reason)
			assert.Equal(t, 1, f.audits.Len())
		})
	}
}

func TestDeleteRecordsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := member("u-owner", "org-a", auth.RoleOwner)

	created, err := f.svc.Create(ctx, owner, CreateInput{Title: "gone", Category: "Personal"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, owner, created.ID))

	_, err = f.tasks.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	entries := f.entries(t, "org-a")
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDelete, entries[0].Action)
	snapshot, ok := entries[0].Changes[deletedKey].(audit.Changes)
	require.True(t, ok, "changes: %#v", entries[0].Changes)
	assert.Equal(t, "gone", snapshot["title"])
	assert.Equal(t, "Personal", snapshot["category"])

	err = f.svc.Delete(ctx, owner, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditFailureRevertsMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := member("u-owner", "org-a", auth.RoleOwner)
	created, err := f.svc.Create(ctx, owner, CreateInput{Title: "stable"})
	require.NoError(t, err)

	boom := errors.New("audit store down")
	f.audits.FailWith(boom)

	_, err = f.svc.Create(ctx, owner, CreateInput{Title: "phantom"})
	require.ErrorIs(t, err, boom)
	_, err = f.svc.Update(ctx, owner, created.ID, UpdateInput{Title: strPtr("changed")})
	require.ErrorIs(t, err, boom)
	err = f.svc.Delete(ctx, owner, created.ID)
	require.ErrorIs(t, err, boom)

	f.audits.FailWith(nil)
	list, err := f.svc.List(ctx, owner, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "stable", list[0].Title)
	assert.Equal(t, 1, f.audits.Len())
}

type recordingTx struct {
	calls int
}

func (tx *recordingTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	tx.calls++
	return fn(ctx)
}

func TestTransactorWrapsMutationAndAudit(t *testing.T) {
	tx := &recordingTx{}
	f := newFixture(t, WithTransactor(tx))
	ctx := context.Background()
	owner := member("u-owner", "org-a", auth.RoleOwner)

	feed := audit.NewFeed()
	rec := audit.NewRecorder(f.audits, audit.WithFeed(feed))
	f.svc.recorder = rec
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := feed.Subscribe(subCtx, "org-a")

	created, err := f.svc.Create(ctx, owner, CreateInput{Title: "in tx"})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)

	select {
	case e := <-events:
		assert.Equal(t, created.ID, e.ResourceID)
	case <-time.After(time.Second):
		t.Fatal("expected feed event after commit")
	}

	f.audits.FailWith(errors.New("write failed"))
	_, err = f.svc.Update(ctx, owner, created.ID, UpdateInput{Title: strPtr("rolled back")})
	require.Error(t, err)
	assert.Equal(t, 2, tx.calls)
	select {
	case e := <-events:
		t.Fatalf("unexpected feed event %+v for failed transaction", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestViewerWithoutUpdatePermissionScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := auth.NewPrincipal("u1", "u1@o1.test", "O1",
		[]auth.Role{auth.RoleViewer},
		[]auth.Permission{auth.PermReadTask, auth.PermCreateTask})

	t1, err := f.svc.Create(ctx, p, CreateInput{Title: "T1"})
	require.NoError(t, err)
	assert.Equal(t, "O1", t1.OrganizationID)
	assert.Equal(t, "u1", t1.CreatedByID)

	entries := f.entries(t, "O1")
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCreate, entries[0].Action)

	_, err = f.svc.Update(ctx, p, t1.ID, UpdateInput{Status: strPtr("done")})
	require.ErrorIs(t, err, auth.ErrForbidden)
	reason, _ := auth.DenyReasonOf(err)
	assert.Equal(t, auth.DenyMissingPermission, reason)
	assert.Equal(t, "missing permission", reason.Message())

	assert.Len(t, f.entries(t, "O1"), 1)
	stored, err := f.tasks.Get(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, stored.Status)
}
