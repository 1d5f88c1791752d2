package store

import (
	"time"

	"equipment-service-backend/internal/model"
)

// IssueFilter narrows ListIssues. Zero fields match everything.
type IssueFilter struct {
	ProductID string
	Statuses  []model.IssueStatus
	Source    model.IssueSource
}

// TaskFilter narrows ListTasks. When From/To are set only tasks scheduled in
// [From, To) match, plus undated pending_schedule tasks if IncludePending is true.
type TaskFilter struct {
	ProductID      string
	IssueID        string
	Statuses       []model.TaskStatus
	Sources        []model.TaskSource
	From           time.Time
	To             time.Time
	IncludePending bool
}

// Counts is the dashboard summary.
type Counts struct {
	Products       int64 `json:"total_products"`
	ServiceRecords int64 `json:"total_services"`
	OpenIssues     int64 `json:"open_issues"`
	ResolvedIssues int64 `json:"resolved_issues"`
}
