package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tasktrail.io/internal/task"
)

func sampleTask() task.Task {
	at := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	return task.Task{
		ID:             "01HTASK",
		Title:          "Write report",
		Description:    "Q1 numbers",
		Status:         task.StatusTodo,
		Category:       "Work",
		OrganizationID: "org-a",
		CreatedByID:    "u1",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func taskRows(ts ...task.Task) *sqlmock.Rows {
	rows := sqlmock.NewRows(taskColumns)
	for _, t := range ts {
		rows.AddRow(t.ID, t.Title, t.Description, string(t.Status), t.Category, t.OrganizationID, t.CreatedByID, t.CreatedAt, t.UpdatedAt)
	}
	return rows
}

func TestTaskCreate(t *testing.T) {
	s, mock := newMock(t)
	tk := sampleTask()
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(tk.ID, tk.Title, tk.Description, "todo", tk.Category, tk.OrganizationID, tk.CreatedByID, tk.CreatedAt, tk.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Tasks().Create(context.Background(), tk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	expectMet(t, mock)
}

func TestTaskGet(t *testing.T) {
	s, mock := newMock(t)
	tk := sampleTask()
	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE id = \$1`).WithArgs(tk.ID).WillReturnRows(taskRows(tk))
	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE id = \$1`).WithArgs("missing").WillReturnRows(taskRows())

	got, err := s.Tasks().Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != tk {
		t.Fatalf("unexpected task: %+v", got)
	}
	if _, err := s.Tasks().Get(context.Background(), "missing"); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestTaskListAppliesFilters(t *testing.T) {
	s, mock := newMock(t)
	tk := sampleTask()
	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE organization_id = \$1 AND status = \$2 AND category = \$3 ORDER BY created_at DESC, id DESC`).
		WithArgs("org-a", "todo", "Work").
		WillReturnRows(taskRows(tk))
	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE organization_id = \$1 ORDER BY created_at DESC`).
		WithArgs("org-b").
		WillReturnRows(taskRows())

	got, err := s.Tasks().List(context.Background(), "org-a", task.ListFilter{Status: task.StatusTodo, Category: "Work"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != tk.ID {
		t.Fatalf("unexpected list: %+v", got)
	}
	empty, err := s.Tasks().List(context.Background(), "org-b", task.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
	expectMet(t, mock)
}

func TestTaskUpdateAndDeleteReportMissingRows(t *testing.T) {
	s, mock := newMock(t)
	tk := sampleTask()
	tk.Title = "Final report"
	mock.ExpectExec(`UPDATE tasks SET title = \$1, description = \$2, status = \$3, category = \$4, updated_at = \$5 WHERE id = \$6`).
		WithArgs(tk.Title, tk.Description, "todo", tk.Category, tk.UpdatedAt, tk.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from tasks").WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Tasks().Update(context.Background(), tk); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Tasks().Update(context.Background(), tk); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Tasks().Delete(context.Background(), "gone"); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}
