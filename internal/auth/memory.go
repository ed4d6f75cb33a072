package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps organizations, users and assignments in process. It backs
// tests and the API when no database is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	orgs        map[string]Organization
	users       map[string]User
	assignments []Assignment
	now         func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:  make(map[string]Organization),
		users: make(map[string]User),
		now:   time.Now,
	}
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Writer = (*MemoryStore)(nil)
)

// CreateOrganization inserts org, stamping timestamps when unset.
func (m *MemoryStore) CreateOrganization(_ context.Context, org Organization) (Organization, error) {
	if strings.TrimSpace(org.ID) == "" || strings.TrimSpace(org.Name) == "" {
		return Organization{}, fmt.Errorf("%w: organization id and name are required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[org.ID]; ok {
		return Organization{}, ErrConflict
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = m.now().UTC()
	}
	org.UpdatedAt = org.CreatedAt
	m.orgs[org.ID] = org
	return org, nil
}

// CreateUser inserts u. Emails are unique case-insensitively.
func (m *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return User{}, fmt.Errorf("%w: user id and email are required", ErrInvalidInput)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[u.OrganizationID]; !ok {
		return User{}, ErrNotFound
	}
	if _, ok := m.users[u.ID]; ok {
		return User{}, ErrConflict
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	u.Roles = nil
	m.users[u.ID] = u
	return u, nil
}

// Assign grants role to userID in organizationID. Holding the same role twice
// in one organization is a conflict.
func (m *MemoryStore) Assign(_ context.Context, userID string, role Role, organizationID string) (Assignment, error) {
	role = NormalizeRole(string(role))
	if userID == "" || role == "" || organizationID == "" {
		return Assignment{}, fmt.Errorf("%w: user, role and organization are required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return Assignment{}, ErrNotFound
	}
	if _, ok := m.orgs[organizationID]; !ok {
		return Assignment{}, ErrNotFound
	}
	for _, a := range m.assignments {
		if a.UserID == userID && a.Role == role && a.OrganizationID == organizationID {
			return Assignment{}, ErrConflict
		}
	}
	a := Assignment{UserID: userID, Role: role, OrganizationID: organizationID, CreatedAt: m.now().UTC()}
	m.assignments = append(m.assignments, a)
	return a, nil
}

// Revoke removes an assignment. Revoking one that does not exist is ErrNotFound.
func (m *MemoryStore) Revoke(_ context.Context, userID string, role Role, organizationID string) error {
	role = NormalizeRole(string(role))
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.UserID == userID && a.Role == role && a.OrganizationID == organizationID {
			m.assignments = append(m.assignments[:i], m.assignments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) AssignmentsFor(_ context.Context, userID, organizationID string) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.UserID == userID && a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemoryStore) ListUsersByOrganization(_ context.Context, organizationID string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0)
	for _, u := range m.users {
		if u.OrganizationID == organizationID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryStore) FindOrganization(_ context.Context, id string) (Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}
