package model

import (
	"time"

	"github.com/guregu/null/v5"
)

// TaskSource records why a maintenance task exists.
type TaskSource string

const (
	TaskSourceAutoYearly      TaskSource = "auto_yearly"
	TaskSourceCustomerIssue   TaskSource = "customer_issue"
	TaskSourceWarrantyService TaskSource = "warranty_service"
	TaskSourceIssue           TaskSource = "issue"
)

// TaskStatus is the state of a maintenance task.
type TaskStatus string

const (
	TaskPendingSchedule TaskStatus = "pending_schedule"
	TaskScheduled       TaskStatus = "scheduled"
	TaskInProgress      TaskStatus = "in_progress"
	TaskCompleted       TaskStatus = "completed"
	TaskCancelled       TaskStatus = "cancelled"
)

// Terminal reports whether s is completed or cancelled.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Task priorities.
const (
	Priority12h = "12h"
	Priority24h = "24h"
)

// MaintenanceTask is a calendar entry, either derived from an issue or recurring.
type MaintenanceTask struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	ProductID       string      `gorm:"size:36;index;not null" json:"product_id"`
	IssueID         null.String `gorm:"size:36;index" json:"issue_id"`
	Source          TaskSource  `gorm:"size:32;index;not null" json:"source"`
	MaintenanceType string      `gorm:"size:64;not null" json:"maintenance_type"`
	Priority        null.String `gorm:"size:8" json:"priority"`
	Status          TaskStatus  `gorm:"size:32;index;not null" json:"status"`
	ScheduledDate   null.Time   `gorm:"index" json:"scheduled_date"`
	TechnicianName  null.String `gorm:"size:128;index" json:"technician_name"`
	Notes           string      `gorm:"type:text" json:"notes"`
	CompletedAt     null.Time   `json:"completed_at"`

	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
