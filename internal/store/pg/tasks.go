package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"tasktrail.io/internal/task"
)

// TaskStore persists tasks in the tasks table.
type TaskStore struct {
	s *Store
}

// Tasks returns the task view of the store.
func (s *Store) Tasks() *TaskStore { return &TaskStore{s: s} }

var _ task.Store = (*TaskStore)(nil)

var taskColumns = []string{
	"id", "title", "description", "status", "category",
	"organization_id", "created_by", "created_at", "updated_at",
}

func (ts *TaskStore) Create(ctx context.Context, t task.Task) error {
	q, err := ts.s.conn(ctx)
	if err != nil {
		return err
	}
	stmt, args, err := ts.s.builder.Insert("tasks").
		Columns(taskColumns...).
		Values(t.ID, t.Title, t.Description, string(t.Status), t.Category,
			t.OrganizationID, t.CreatedByID, t.CreatedAt, t.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert task sql: %w", err)
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return mapConstraint(err, task.ErrInvalidInput, task.ErrInvalidInput)
	}
	return nil
}

func (ts *TaskStore) Get(ctx context.Context, id string) (task.Task, error) {
	q, err := ts.s.conn(ctx)
	if err != nil {
		return task.Task{}, err
	}
	stmt, args, err := ts.s.builder.Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return task.Task{}, fmt.Errorf("build select task sql: %w", err)
	}
	t, err := scanTask(q.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.ErrNotFound
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

func (ts *TaskStore) List(ctx context.Context, organizationID string, f task.ListFilter) ([]task.Task, error) {
	q, err := ts.s.conn(ctx)
	if err != nil {
		return nil, err
	}
	sel := ts.s.builder.Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"organization_id": organizationID})
	if f.Status != "" {
		sel = sel.Where(squirrel.Eq{"status": string(f.Status)})
	}
	if f.Category != "" {
		sel = sel.Where(squirrel.Eq{"category": f.Category})
	}
	stmt, args, err := sel.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tasks sql: %w", err)
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// Update overwrites the editable fields. Organization and creator never change.
func (ts *TaskStore) Update(ctx context.Context, t task.Task) error {
	q, err := ts.s.conn(ctx)
	if err != nil {
		return err
	}
	stmt, args, err := ts.s.builder.Update("tasks").
		Set("title", t.Title).
		Set("description", t.Description).
		Set("status", string(t.Status)).
		Set("category", t.Category).
		Set("updated_at", t.UpdatedAt).
		Where(squirrel.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update task sql: %w", err)
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return affectedOne(res, task.ErrNotFound)
}

func (ts *TaskStore) Delete(ctx context.Context, id string) error {
	q, err := ts.s.conn(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return affectedOne(res, task.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t      task.Task
		status string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Category,
		&t.OrganizationID, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	t.Status = task.Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
