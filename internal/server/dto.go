package server

import (
	"taskboard/internal/domain"
	"taskboard/internal/report"
)

// Request payloads. Fields are optional at the schema level so the domain
// layer reports what is missing.

type SignupRequest struct {
	_        struct{} `json:"-" additionalProperties:"true"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"password,omitempty"`
}

type LoginRequest struct {
	_        struct{} `json:"-" additionalProperties:"true"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"password,omitempty"`
}

// CreateTaskRequest ignores client-sent id and createdAt.
type CreateTaskRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty" enum:"pending,in-progress,completed"`
	Priority    string   `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     string   `json:"dueDate,omitempty" example:"2024-01-01"`
}

func (r CreateTaskRequest) input() domain.TaskInput {
	return domain.TaskInput{
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.Status(r.Status),
		Priority:    domain.Priority(r.Priority),
		DueDate:     r.DueDate,
	}
}

type UpdateTaskRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"pending,in-progress,completed"`
	Priority    *string  `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     *string  `json:"dueDate,omitempty" example:"2024-01-01"`
}

func (r UpdateTaskRequest) patch() domain.TaskPatch {
	p := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		p.Status = &s
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

// Response payloads

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type SignupResponse struct {
	Success bool        `json:"success"`
	User    domain.User `json:"user"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type TaskResponse struct {
	Task domain.Task `json:"task"`
}

type SummaryResponse struct {
	Summary report.Summary `json:"summary"`
}

func nonNilTasks(items []domain.Task) []domain.Task {
	if items == nil {
		return []domain.Task{}
	}
	return items
}
