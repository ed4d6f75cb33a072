package audit

import "context"

// Query selects entries. Zero-valued fields do not filter; non-zero fields
// combine with AND. Results are ordered by timestamp descending, then id
// descending.
type Query struct {
	OrganizationID string
	UserID         string
	Resource       ResourceType
	ResourceID     string
	Action         Action
	Limit          int
	Offset         int
}

// Store persists entries. Implementations never update or delete.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
}

// Counter is implemented by stores that can report volume per organization.
type Counter interface {
	CountByOrganization(ctx context.Context) (map[string]int64, error)
}
