package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound     = errors.New("task: not found")
	ErrInvalidInput = errors.New("task: invalid input")
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ParseStatus validates s. Matching ignores surrounding whitespace and case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusTodo, StatusInProgress, StatusDone:
		return st, true
	}
	return "", false
}

const (
	DefaultCategory   = "Work"
	maxTitleLength    = 255
	maxCategoryLength = 100
)

// Task is a unit of work owned by one organization.
type Task struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	Category       string    `json:"category"`
	OrganizationID string    `json:"organizationId"`
	CreatedByID    string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Fields returns the user-editable fields, the shape recorded in audit
// change payloads.
func (t Task) Fields() map[string]any {
	return map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"category":    t.Category,
	}
}

// CreateInput is the payload for a new task.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Category    string `json:"category,omitempty"`
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// Empty reports whether no field carries a value. Blank strings count as
// absent, so a description can only be cleared alongside another change.
func (in UpdateInput) Empty() bool {
	return blank(in.Title) && blank(in.Description) && blank(in.Status) && blank(in.Category)
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// ListFilter narrows a list call. Zero values do not filter.
type ListFilter struct {
	Status   Status
	Category string
}

func normalizeCreate(in CreateInput) (Task, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return Task{}, err
	}
	status := StatusTodo
	if strings.TrimSpace(in.Status) != "" {
		st, ok := ParseStatus(in.Status)
		if !ok {
			return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
		}
		status = st
	}
	category := DefaultCategory
	if strings.TrimSpace(in.Category) != "" {
		if category, err = validCategory(in.Category); err != nil {
			return Task{}, err
		}
	}
	return Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      status,
		Category:    category,
	}, nil
}

// apply returns a copy of t with the update applied.
func apply(t Task, in UpdateInput) (Task, error) {
	if in.Empty() {
		return Task{}, fmt.Errorf("%w: at least one field must be provided for update", ErrInvalidInput)
	}
	out := t
	if in.Title != nil {
		title, err := validTitle(*in.Title)
		if err != nil {
			return Task{}, err
		}
		out.Title = title
	}
	if in.Description != nil {
		out.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		st, ok := ParseStatus(*in.Status)
		if !ok {
			return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		out.Status = st
	}
	if in.Category != nil {
		category, err := validCategory(*in.Category)
		if err != nil {
			return Task{}, err
		}
		out.Category = category
	}
	return out, nil
}

func validTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(s) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLength)
	}
	return s, nil
}

func validCategory(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: category must not be blank", ErrInvalidInput)
	}
	if utf8.RuneCountInString(s) > maxCategoryLength {
		return "", fmt.Errorf("%w: category exceeds %d characters", ErrInvalidInput, maxCategoryLength)
	}
	return s, nil
}
