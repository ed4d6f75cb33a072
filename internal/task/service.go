package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
	"tasktrail.io/internal/ids"
	"tasktrail.io/internal/obs"
)

// deletedKey names the snapshot inside a DELETE change payload.
const deletedKey = "deletedTask"

// Service applies authorization and auditing around task storage.
type Service struct {
	store    Store
	engine   *auth.Engine
	recorder *audit.Recorder
	tx       Transactor
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTransactor makes every mutation and its audit entry commit together.
// The task and audit stores must both join transactions carried by the
// transactor's context.
func WithTransactor(tx Transactor) Option {
	return func(s *Service) { s.tx = tx }
}

// WithClock overrides the time source for task timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the task service.
func NewService(store Store, engine *auth.Engine, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{store: store, engine: engine, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new task in the caller's organization and records a
// CREATE entry with a snapshot of its fields.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (t Task, err error) {
	ctx, span := s.start(ctx, "task.Create", p)
	defer func() { finish(span, err) }()

	t, err = normalizeCreate(in)
	if err != nil {
		return Task{}, err
	}
	if err = s.authorize(ctx, p, auth.PermCreateTask, auth.OpCreate, nil); err != nil {
		return Task{}, err
	}

	now := s.now().UTC()
	t.ID = ids.NewAt(now)
	t.OrganizationID = p.OrganizationID
	t.CreatedByID = p.UserID
	t.CreatedAt = now
	t.UpdatedAt = now

	err = s.write(ctx,
		func(ctx context.Context) error { return s.store.Create(ctx, t) },
		func(ctx context.Context) error { return s.store.Delete(ctx, t.ID) },
		audit.Event{
			Action:         audit.ActionCreate,
			ActorUserID:    p.UserID,
			OrganizationID: t.OrganizationID,
			Resource:       audit.ResourceTask,
			ResourceID:     t.ID,
			Changes:        audit.Snapshot(t.Fields()),
		})
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// List returns the tasks of the caller's organization, newest first. Listing
// is not audited.
func (s *Service) List(ctx context.Context, p auth.Principal, f ListFilter) (tasks []Task, err error) {
	ctx, span := s.start(ctx, "task.List", p)
	defer func() { finish(span, err) }()

	if f.Status != "" {
		st, ok := ParseStatus(string(f.Status))
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
		}
		f.Status = st
	}
	f.Category = strings.TrimSpace(f.Category)

	if err = s.authorize(ctx, p, auth.PermReadTask, auth.OpList, nil); err != nil {
		return nil, err
	}
	tasks, err = s.store.List(ctx, p.OrganizationID, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Get returns one task and records a READ entry.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (t Task, err error) {
	ctx, span := s.start(ctx, "task.Get", p)
	defer func() { finish(span, err) }()

	if id, err = validID(id); err != nil {
		return Task{}, err
	}
	if t, err = s.load(ctx, p, id, auth.PermReadTask, auth.OpRead); err != nil {
		return Task{}, err
	}
	_, err = s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionRead,
		ActorUserID:    p.UserID,
		OrganizationID: p.OrganizationID,
		Resource:       audit.ResourceTask,
		ResourceID:     t.ID,
	})
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Update applies a partial update and records an UPDATE entry holding only
// the fields that changed.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in UpdateInput) (t Task, err error) {
	ctx, span := s.start(ctx, "task.Update", p)
	defer func() { finish(span, err) }()

	if id, err = validID(id); err != nil {
		return Task{}, err
	}
	if _, err = apply(Task{}, in); err != nil {
		return Task{}, err
	}
	prev, err := s.load(ctx, p, id, auth.PermUpdateTask, auth.OpUpdate)
	if err != nil {
		return Task{}, err
	}
	next, err := apply(prev, in)
	if err != nil {
		return Task{}, err
	}
	next.UpdatedAt = s.now().UTC()

	err = s.write(ctx,
		func(ctx context.Context) error { return s.store.Update(ctx, next) },
		func(ctx context.Context) error { return s.store.Update(ctx, prev) },
		audit.Event{
			Action:         audit.ActionUpdate,
			ActorUserID:    p.UserID,
			OrganizationID: p.OrganizationID,
			Resource:       audit.ResourceTask,
			ResourceID:     next.ID,
			Changes:        audit.Diff(prev.Fields(), next.Fields()),
		})
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return next, nil
}

// Delete removes a task and records a DELETE entry carrying its last state.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) (err error) {
	ctx, span := s.start(ctx, "task.Delete", p)
	defer func() { finish(span, err) }()

	if id, err = validID(id); err != nil {
		return err
	}
	prev, err := s.load(ctx, p, id, auth.PermDeleteTask, auth.OpDelete)
	if err != nil {
		return err
	}
	err = s.write(ctx,
		func(ctx context.Context) error { return s.store.Delete(ctx, prev.ID) },
		func(ctx context.Context) error { return s.store.Create(ctx, prev) },
		audit.Event{
			Action:         audit.ActionDelete,
			ActorUserID:    p.UserID,
			OrganizationID: p.OrganizationID,
			Resource:       audit.ResourceTask,
			ResourceID:     prev.ID,
			Changes:        audit.Deleted(deletedKey, prev.Fields()),
		})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// load fetches a task and authorizes op against it. A missing task is only
// reported as not found once the caller has passed the membership and
// permission checks.
func (s *Service) load(ctx context.Context, p auth.Principal, id string, perm auth.Permission, op auth.Operation) (Task, error) {
	t, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.authorize(ctx, p, perm, op, nil); err != nil {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, id)
	case err != nil:
		return Task{}, fmt.Errorf("load task: %w", err)
	}
	res := &auth.Resource{OwnerUserID: t.CreatedByID, OrganizationID: t.OrganizationID}
	if err := s.authorize(ctx, p, perm, op, res); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) authorize(ctx context.Context, p auth.Principal, perm auth.Permission, op auth.Operation, res *auth.Resource) error {
	d, err := s.engine.Authorize(ctx, auth.Request{
		Principal:      p,
		OrganizationID: p.OrganizationID,
		Permission:     perm,
		Operation:      op,
		Resource:       res,
	})
	if err != nil {
		return err
	}
	if !d.Allowed {
		audit.LogDenial(ctx, p.UserID, p.OrganizationID, string(perm), string(d.Reason))
		return d.Err()
	}
	return nil
}

// write performs a mutation together with its audit entry. With a transactor
// both commit or neither does. Without one the mutation is undone when the
// audit append fails.
func (s *Service) write(ctx context.Context, mutate, undo func(context.Context) error, ev audit.Event) error {
	if s.tx != nil {
		bctx, batch := s.recorder.BeginBatch(ctx)
		err := s.tx.WithinTx(bctx, func(ctx context.Context) error {
			if err := mutate(ctx); err != nil {
				return err
			}
			_, err := s.recorder.Record(ctx, ev)
			return err
		})
		if err != nil {
			batch.Discard()
			return err
		}
		batch.Commit(ctx)
		return nil
	}

	if err := mutate(ctx); err != nil {
		return err
	}
	if _, err := s.recorder.Record(ctx, ev); err != nil {
		if uerr := undo(ctx); uerr != nil {
			obs.Logger().WithError(uerr).WithFields(logrus.Fields{
				"action":      string(ev.Action),
				"resource_id": ev.ResourceID,
			}).Error("task mutation could not be reverted after audit failure")
			return errors.Join(err, uerr)
		}
		return err
	}
	return nil
}

func (s *Service) start(ctx context.Context, name string, p auth.Principal) (context.Context, trace.Span) {
	ctx, span := obs.Tracer().Start(ctx, name)
	span.SetAttributes(
		attribute.String("user.id", p.UserID),
		attribute.String("organization.id", p.OrganizationID),
	)
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	return id, nil
}
