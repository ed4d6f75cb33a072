package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktrail.io/internal/auth"
)

// AccountStore persists organizations, users and role assignments.
type AccountStore struct {
	s *Store
}

// Accounts returns the account view of the store.
func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

var (
	_ auth.Store  = (*AccountStore)(nil)
	_ auth.Writer = (*AccountStore)(nil)
)

func (a *AccountStore) CreateOrganization(ctx context.Context, org auth.Organization) (auth.Organization, error) {
	if strings.TrimSpace(org.ID) == "" || strings.TrimSpace(org.Name) == "" {
		return auth.Organization{}, fmt.Errorf("%w: organization id and name are required", auth.ErrInvalidInput)
	}
	q, err := a.s.conn(ctx)
	if err != nil {
		return auth.Organization{}, err
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = a.s.now().UTC()
	}
	org.UpdatedAt = org.CreatedAt
	_, err = q.ExecContext(ctx, `
		insert into organizations (id, name, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Description, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return auth.Organization{}, mapConstraint(err, auth.ErrConflict, auth.ErrNotFound)
	}
	return org, nil
}

func (a *AccountStore) FindOrganization(ctx context.Context, id string) (auth.Organization, error) {
	q, err := a.s.conn(ctx)
	if err != nil {
		return auth.Organization{}, err
	}
	var org auth.Organization
	err = q.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Description, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Organization{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Organization{}, err
	}
	return org, nil
}

func (a *AccountStore) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return auth.User{}, fmt.Errorf("%w: user id and email are required", auth.ErrInvalidInput)
	}
	q, err := a.s.conn(ctx)
	if err != nil {
		return auth.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = a.s.now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	u.Roles = nil
	_, err = q.ExecContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, organization_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.OrganizationID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return auth.User{}, mapConstraint(err, auth.ErrConflict, auth.ErrNotFound)
	}
	return u, nil
}

const userColumns = `id, email, password_hash, first_name, last_name, organization_id, created_at, updated_at`

func (a *AccountStore) FindUser(ctx context.Context, id string) (auth.User, error) {
	return a.findUser(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (a *AccountStore) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return a.findUser(ctx, `select `+userColumns+` from users where email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (a *AccountStore) findUser(ctx context.Context, query string, arg string) (auth.User, error) {
	q, err := a.s.conn(ctx)
	if err != nil {
		return auth.User{}, err
	}
	u, err := scanUser(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (a *AccountStore) ListUsersByOrganization(ctx context.Context, organizationID string) ([]auth.User, error) {
	q, err := a.s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `select `+userColumns+` from users where organization_id = $1 order by email`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.OrganizationID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Assign grants role in organizationID. The (user, role, organization)
// primary key turns a repeat grant into auth.ErrConflict.
func (a *AccountStore) Assign(ctx context.Context, userID string, role auth.Role, organizationID string) (auth.Assignment, error) {
	role = auth.NormalizeRole(string(role))
	if userID == "" || role == "" || organizationID == "" {
		return auth.Assignment{}, fmt.Errorf("%w: user, role and organization are required", auth.ErrInvalidInput)
	}
	q, err := a.s.conn(ctx)
	if err != nil {
		return auth.Assignment{}, err
	}
	as := auth.Assignment{UserID: userID, Role: role, OrganizationID: organizationID, CreatedAt: a.s.now().UTC()}
	_, err = q.ExecContext(ctx, `
		insert into user_roles (user_id, role, organization_id, created_at)
		values ($1, $2, $3, $4)
	`, as.UserID, string(as.Role), as.OrganizationID, as.CreatedAt)
	if err != nil {
		return auth.Assignment{}, mapConstraint(err, auth.ErrConflict, auth.ErrNotFound)
	}
	return as, nil
}

func (a *AccountStore) Revoke(ctx context.Context, userID string, role auth.Role, organizationID string) error {
	q, err := a.s.conn(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role = $2 and organization_id = $3
	`, userID, string(auth.NormalizeRole(string(role))), organizationID)
	if err != nil {
		return err
	}
	return affectedOne(res, auth.ErrNotFound)
}

// AssignmentsFor lists the user's grants in one organization in grant order.
func (a *AccountStore) AssignmentsFor(ctx context.Context, userID, organizationID string) ([]auth.Assignment, error) {
	q, err := a.s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		select user_id, role, organization_id, created_at
		from user_roles
		where user_id = $1 and organization_id = $2
		order by created_at, role
	`, userID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Assignment
	for rows.Next() {
		var (
			as   auth.Assignment
			role string
		)
		if err := rows.Scan(&as.UserID, &role, &as.OrganizationID, &as.CreatedAt); err != nil {
			return nil, err
		}
		as.Role = auth.Role(role)
		out = append(out, as)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
