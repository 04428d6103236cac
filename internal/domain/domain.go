package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of Task.DueDate.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status" enum:"pending,in-progress,completed"`
	Priority    Priority `json:"priority" enum:"low,medium,high"`
	DueDate     string   `json:"dueDate" format:"date" example:"2024-01-01"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// TaskInput carries the client-supplied fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
	DueDate     string
}

// Validate checks every field a new task must carry.
func (in TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ValidationError{Field: "title", Reason: "is required"}
	}
	if in.Status == "" {
		return ValidationError{Field: "status", Reason: "is required"}
	}
	if !in.Status.Valid() {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("must be one of pending, in-progress, completed (got %q)", in.Status)}
	}
	if in.Priority == "" {
		return ValidationError{Field: "priority", Reason: "is required"}
	}
	if !in.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: fmt.Sprintf("must be one of low, medium, high (got %q)", in.Priority)}
	}
	if in.DueDate == "" {
		return ValidationError{Field: "dueDate", Reason: "is required"}
	}
	return validateDate(in.DueDate)
}

// TaskPatch is a partial update; nil fields keep their stored value.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	DueDate     *string
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && p.DueDate == nil
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("must be one of pending, in-progress, completed (got %q)", *p.Status)}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: fmt.Sprintf("must be one of low, medium, high (got %q)", *p.Priority)}
	}
	if p.DueDate != nil {
		return validateDate(*p.DueDate)
	}
	return nil
}

// Apply merges the patch over t. Each provided field replaces the old value.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	return t
}

func validateDate(v string) error {
	if _, err := time.Parse(DateLayout, v); err != nil {
		return ValidationError{Field: "dueDate", Reason: fmt.Sprintf("must be a YYYY-MM-DD date (got %q)", v)}
	}
	return nil
}
