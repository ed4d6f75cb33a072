package auth

import "context"

// UserStore reads user accounts.
type UserStore interface {
	FindUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsersByOrganization(ctx context.Context, organizationID string) ([]User, error)
}

// OrganizationStore reads tenants.
type OrganizationStore interface {
	FindOrganization(ctx context.Context, id string) (Organization, error)
}

// Writer provisions tenants, accounts and role assignments.
type Writer interface {
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	CreateUser(ctx context.Context, u User) (User, error)
	Assign(ctx context.Context, userID string, role Role, organizationID string) (Assignment, error)
}

// Store is everything the auth service needs from persistence.
type Store interface {
	UserStore
	OrganizationStore
	AssignmentStore
}
