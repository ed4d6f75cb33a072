package task

import "context"

// Store persists tasks. Get, Update and Delete return ErrNotFound for an
// unknown id.
type Store interface {
	Create(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	List(ctx context.Context, organizationID string, f ListFilter) ([]Task, error)
	Update(ctx context.Context, t Task) error
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn inside one database transaction. Stores sharing the
// transactor pick the transaction up from the context passed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
