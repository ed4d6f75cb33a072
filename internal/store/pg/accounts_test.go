package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tasktrail.io/internal/auth"
)

func TestCreateUserNormalizesEmailAndMapsConflicts(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into users").
		WithArgs("u1", "owner@techcorp.com", "hash", "Ada", "", "org-a", created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_key"})
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "users_organization_id_fkey"})

	accounts := s.Accounts()
	u, err := accounts.CreateUser(context.Background(), auth.User{ID: "u1", Email: " Owner@TechCorp.com ", PasswordHash: "hash", FirstName: "Ada", OrganizationID: "org-a"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "owner@techcorp.com" || !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := accounts.CreateUser(context.Background(), auth.User{ID: "u2", Email: "owner@techcorp.com", OrganizationID: "org-a"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := accounts.CreateUser(context.Background(), auth.User{ID: "u3", Email: "x@nowhere.test", OrganizationID: "org-z"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := accounts.CreateUser(context.Background(), auth.User{Email: "x@y.test"}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	expectMet(t, mock)
}

func TestFindUserByEmail(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "email", "password_hash", "first_name", "last_name", "organization_id", "created_at", "updated_at"}
	mock.ExpectQuery("from users where email = \\$1").
		WithArgs("user1@techcorp.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "user1@techcorp.com", "hash", "John", "Owner", "org-a", at, at))
	mock.ExpectQuery("from users where id = \\$1").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(cols))

	u, err := s.Accounts().FindUserByEmail(context.Background(), "USER1@techcorp.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.ID != "u1" || u.PasswordHash != "hash" || u.OrganizationID != "org-a" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := s.Accounts().FindUser(context.Background(), "nobody"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestAssignAndAssignmentsFor(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "ADMIN", "org-a", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "user_roles_pkey"})
	mock.ExpectQuery("from user_roles").
		WithArgs("u1", "org-a").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role", "organization_id", "created_at"}).
			AddRow("u1", "ADMIN", "org-a", at).
			AddRow("u1", "VIEWER", "org-a", at))

	accounts := s.Accounts()
	if _, err := accounts.Assign(context.Background(), "u1", "admin", "org-a"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := accounts.Assign(context.Background(), "u1", auth.RoleAdmin, "org-a"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := accounts.AssignmentsFor(context.Background(), "u1", "org-a")
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(got) != 2 || got[0].Role != auth.RoleAdmin || got[1].Role != auth.RoleViewer {
		t.Fatalf("unexpected assignments: %+v", got)
	}
	expectMet(t, mock)
}

func TestRevokeMissingAssignment(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1", "OWNER", "org-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Accounts().Revoke(context.Background(), "u1", auth.RoleOwner, "org-a"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}
