package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tasktrail.io/internal/ids"
	"tasktrail.io/internal/obs"
)

// Recorder appends audit entries and answers the audit queries.
type Recorder struct {
	store Store
	feed  *Feed
	now   func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source used for entry timestamps.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithFeed publishes every durable entry to feed.
func WithFeed(feed *Feed) Option {
	return func(r *Recorder) { r.feed = feed }
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates ev, stamps it with a fresh id and the server time, and
// appends it. A store failure is returned to the caller.
func (r *Recorder) Record(ctx context.Context, ev Event) (Entry, error) {
	if err := validateEvent(ev); err != nil {
		return Entry{}, err
	}
	now := r.now().UTC()
	entry := Entry{
		ID:             ids.NewAt(now),
		Action:         ev.Action,
		UserID:         strings.TrimSpace(ev.ActorUserID),
		OrganizationID: strings.TrimSpace(ev.OrganizationID),
		Resource:       ev.Resource,
		ResourceID:     strings.TrimSpace(ev.ResourceID),
		Timestamp:      now,
		Changes:        ev.Changes,
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	if b := batchFromContext(ctx); b != nil {
		b.add(entry)
	} else {
		r.emit(ctx, entry)
	}
	return entry, nil
}

func validateEvent(ev Event) error {
	switch ev.Action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, ev.Action)
	}
	switch ev.Resource {
	case ResourceTask, ResourceUser, ResourceOrganization:
	default:
		return fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, ev.Resource)
	}
	if strings.TrimSpace(ev.ActorUserID) == "" {
		return fmt.Errorf("%w: actor user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(ev.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrInvalidInput)
	}
	return nil
}

// emit runs the side effects that should only follow a durable write.
func (r *Recorder) emit(ctx context.Context, e Entry) {
	obs.AuditWrites.WithLabelValues(string(e.Action), string(e.Resource)).Inc()
	LogEntry(ctx, e)
	if r.feed != nil {
		r.feed.Publish(e)
	}
}

// Filter narrows an organization-scoped query.
type Filter struct {
	UserID   string
	Resource ResourceType
	Action   Action
}

// Query returns the organization's entries matching every set filter, newest
// first. An organization id is mandatory.
func (r *Recorder) Query(ctx context.Context, organizationID string, f Filter) ([]Entry, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return r.run(ctx, Query{
		OrganizationID: organizationID,
		UserID:         strings.TrimSpace(f.UserID),
		Resource:       f.Resource,
		Action:         f.Action,
	})
}

// QueryByResource returns the history of one resource, newest first.
func (r *Recorder) QueryByResource(ctx context.Context, resource ResourceType, resourceID string) ([]Entry, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resource == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: resource type and id are required", ErrInvalidInput)
	}
	return r.run(ctx, Query{Resource: resource, ResourceID: resourceID})
}

// QueryByUser returns every entry written by userID across all organizations.
// It is not tenant-scoped; callers must restrict who reaches it.
func (r *Recorder) QueryByUser(ctx context.Context, userID string) ([]Entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return r.run(ctx, Query{UserID: userID})
}

// QueryPaginated returns one page of all entries, newest first. Bounds on
// limit are enforced by the caller; non-positive values are rejected here.
func (r *Recorder) QueryPaginated(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrInvalidInput)
	}
	return r.run(ctx, Query{Limit: limit, Offset: offset})
}

// QueryPage returns one page of an organization's entries, newest first.
func (r *Recorder) QueryPage(ctx context.Context, organizationID string, limit, offset int) ([]Entry, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrInvalidInput)
	}
	return r.run(ctx, Query{OrganizationID: organizationID, Limit: limit, Offset: offset})
}

// CountByOrganization reports stored volume per organization when the store
// supports it.
func (r *Recorder) CountByOrganization(ctx context.Context) (map[string]int64, error) {
	c, ok := r.store.(Counter)
	if !ok {
		return nil, fmt.Errorf("audit store %T cannot count entries", r.store)
	}
	return c.CountByOrganization(ctx)
}

func (r *Recorder) run(ctx context.Context, q Query) ([]Entry, error) {
	entries, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
