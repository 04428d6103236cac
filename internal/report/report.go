// Package report aggregates a user's tasks into the figures shown by the
// reports view: status counts, completion rate, per-priority and per-month
// breakdowns.
package report

import (
	"math"
	"sort"
	"time"

	"taskboard/internal/domain"
)

type StatusCount struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
}

type PriorityCount struct {
	Priority  domain.Priority `json:"priority"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
}

type MonthCount struct {
	Month     string `json:"month" example:"2024-01"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

type Summary struct {
	Total          int             `json:"total"`
	ByStatus       []StatusCount   `json:"byStatus"`
	CompletionRate int             `json:"completionRate" doc:"Completed tasks as a rounded percentage"`
	ByPriority     []PriorityCount `json:"byPriority"`
	ByMonth        []MonthCount    `json:"byMonth"`
	OpenHigh       int             `json:"openHighPriority" doc:"High priority tasks not yet completed"`
	Overdue        int             `json:"overdue" doc:"Open tasks whose due date has passed"`
}

// Summarize computes the summary as of the given instant. Tasks lacking a
// parseable createdAt or dueDate are left out of every figure.
func Summarize(tasks []domain.Task, asOf time.Time) Summary {
	today := asOf.UTC().Format(domain.DateLayout)
	byStatus := map[domain.Status]int{}
	byPriority := map[domain.Priority]*PriorityCount{}
	months := map[string]*MonthCount{}

	var s Summary
	for _, t := range tasks {
		created, ok := countable(t)
		if !ok {
			continue
		}
		done := t.Status == domain.StatusCompleted
		s.Total++
		byStatus[t.Status]++

		pc := byPriority[t.Priority]
		if pc == nil {
			pc = &PriorityCount{Priority: t.Priority}
			byPriority[t.Priority] = pc
		}
		pc.Total++

		key := created.Format("2006-01")
		mc := months[key]
		if mc == nil {
			mc = &MonthCount{Month: key}
			months[key] = mc
		}
		mc.Created++

		if done {
			pc.Completed++
			mc.Completed++
			continue
		}
		if t.Priority == domain.PriorityHigh {
			s.OpenHigh++
		}
		// YYYY-MM-DD compares correctly as a string.
		if t.DueDate < today {
			s.Overdue++
		}
	}

	s.ByStatus = make([]StatusCount, 0, len(domain.Statuses))
	for _, st := range domain.Statuses {
		s.ByStatus = append(s.ByStatus, StatusCount{Status: st, Count: byStatus[st]})
	}
	s.CompletionRate = percent(byStatus[domain.StatusCompleted], s.Total)

	s.ByPriority = make([]PriorityCount, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		pc := PriorityCount{Priority: p}
		if got := byPriority[p]; got != nil {
			pc = *got
		}
		s.ByPriority = append(s.ByPriority, pc)
	}

	s.ByMonth = make([]MonthCount, 0, len(months))
	for _, mc := range months {
		s.ByMonth = append(s.ByMonth, *mc)
	}
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Month < s.ByMonth[j].Month })
	return s
}

func countable(t domain.Task) (time.Time, bool) {
	if !t.Status.Valid() || !t.Priority.Valid() {
		return time.Time{}, false
	}
	if _, err := time.Parse(domain.DateLayout, t.DueDate); err != nil {
		return time.Time{}, false
	}
	created, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return created.UTC(), true
}

// percent rounds half away from zero.
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
