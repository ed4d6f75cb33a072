package auth

import "time"

// Organization is a tenant. Every task, assignment and audit entry belongs to one.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is an account that signs in and acts on behalf of its organization.
type User struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	PasswordHash   string        `json:"-"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	OrganizationID string        `json:"organizationId"`
	Organization   *Organization `json:"organization,omitempty"`
	Roles          []Role        `json:"roles,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Assignment grants a role to a user inside one organization. The
// (user, role, organization) triple is unique.
type Assignment struct {
	UserID         string    `json:"userId"`
	Role           Role      `json:"role"`
	OrganizationID string    `json:"organizationId"`
	CreatedAt      time.Time `json:"createdAt"`
}
