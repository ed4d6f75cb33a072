package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service signs users in and serves the user directory. Authorization
// decisions are delegated to the Engine.
type Service struct {
	store    Store
	tokens   *Tokens
	resolver *Resolver
	engine   *Engine
}

// NewService wires the auth service from explicit collaborators.
func NewService(store Store, tokens *Tokens, resolver *Resolver, engine *Engine) *Service {
	return &Service{store: store, tokens: tokens, resolver: resolver, engine: engine}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
	Principal   Principal
}

// Login verifies credentials and issues an access token carrying the user's
// roles and permissions in their home organization.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword("", password)
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrUnauthorized
	}

	base := NewPrincipal(user.ID, user.Email, user.OrganizationID, nil, nil)
	principal, err := s.resolver.ResolveFresh(ctx, base)
	if err != nil {
		return LoginResult{}, fmt.Errorf("resolve principal: %w", err)
	}
	token, exp, err := s.tokens.Issue(principal)
	if err != nil {
		return LoginResult{}, err
	}
	user.Roles = principal.Roles
	return LoginResult{AccessToken: token, ExpiresAt: exp, User: user, Principal: principal}, nil
}

// Authenticate verifies a bearer token and returns the principal it carries.
func (s *Service) Authenticate(_ context.Context, token string) (Principal, error) {
	return s.tokens.Verify(token)
}

// Profile returns the caller's own account with its organization attached.
func (s *Service) Profile(ctx context.Context, p Principal) (User, error) {
	user, err := s.store.FindUser(ctx, p.UserID)
	if err != nil {
		return User{}, err
	}
	org, err := s.store.FindOrganization(ctx, user.OrganizationID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if err == nil {
		user.Organization = &org
	}
	roles, err := s.resolver.ResolveRoles(ctx, user.ID, user.OrganizationID)
	if err != nil {
		return User{}, err
	}
	user.Roles = roles
	return user, nil
}

// GetUser returns another account in the caller's organization.
func (s *Service) GetUser(ctx context.Context, p Principal, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.engine.RequireOrganization(p, user.OrganizationID).Err(); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListOrganizationUsers lists the members of organizationID. The caller must
// belong to that organization and hold OWNER or ADMIN there.
func (s *Service) ListOrganizationUsers(ctx context.Context, p Principal, organizationID string) ([]User, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	d, err := s.engine.RequireAnyRole(ctx, p, RoleOwner, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if err := s.engine.RequireOrganization(p, organizationID).Err(); err != nil {
		return nil, err
	}
	return s.store.ListUsersByOrganization(ctx, organizationID)
}
