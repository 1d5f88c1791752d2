package model

import (
	"time"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusInService  IssueStatus = "in_service"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusCancelled  IssueStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusResolved || s == IssueStatusCancelled
}

// IssueSource is the actor that reported an issue.
type IssueSource string

const (
	SourceTechnician IssueSource = "technician"
	SourceCustomer   IssueSource = "customer"
)

// Valid reports whether s is a known reporting actor.
func (s IssueSource) Valid() bool {
	return s == SourceTechnician || s == SourceCustomer
}

// Severity grades an issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ServiceType tells whether a resolution is covered by warranty.
type ServiceType string

const (
	ServiceWarranty    ServiceType = "warranty"
	ServiceNonWarranty ServiceType = "non_warranty"
)

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	return t == ServiceWarranty || t == ServiceNonWarranty
}

// Issue is a reported problem with a product. A warranty-route issue is the child
// half of a one-level chain and always points back at its parent.
type Issue struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	IssueCode   string      `gorm:"size:128;uniqueIndex" json:"issue_code"`
	ProductID   string      `gorm:"size:36;index;not null" json:"product_id"`
	Source      IssueSource `gorm:"size:16;not null" json:"source"`
	Status      IssueStatus `gorm:"size:16;index;not null" json:"status"`
	Severity    Severity    `gorm:"size:16;not null" json:"severity"`
	IssueType   string      `gorm:"size:64" json:"issue_type"`
	Title       string      `gorm:"size:256;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`

	ProductLocation      null.String `gorm:"size:256" json:"product_location"`
	TechnicianName       null.String `gorm:"size:128;index" json:"technician_name"`
	TechnicianAssignedAt null.Time   `json:"technician_assigned_at"`
	ResolvedAt           null.Time   `json:"resolved_at"`
	Resolution           null.String `gorm:"type:text" json:"resolution"`

	WarrantyServiceType null.String         `gorm:"size:16" json:"warranty_service_type"`
	EstimatedFixTime    null.String         `gorm:"size:32" json:"estimated_fix_time"`
	EstimatedCost       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"estimated_cost"`

	IsWarrantyRoute         bool        `gorm:"not null;default:false" json:"is_warranty_route"`
	ParentIssueID           null.String `gorm:"size:36;index" json:"parent_issue_id"`
	ChildIssueID            null.String `gorm:"size:36" json:"child_issue_id"`
	WarrantyRepairStartedAt null.Time   `json:"warranty_repair_started_at"`

	RepairAttempts []RepairAttempt `gorm:"foreignKey:IssueID;constraint:OnDelete:CASCADE" json:"repair_attempts"`

	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTechnician reports whether a technician is currently assigned.
func (i *Issue) HasTechnician() bool {
	return i.TechnicianName.Valid && i.TechnicianName.String != ""
}

// RoutingInFlight reports whether i is a parent waiting on its warranty repair.
func (i *Issue) RoutingInFlight() bool {
	return !i.IsWarrantyRoute && i.Status == IssueStatusInService
}

// ActiveAttempt returns the repair attempt currently in progress, if any.
func (i *Issue) ActiveAttempt() *RepairAttempt {
	for k := range i.RepairAttempts {
		if i.RepairAttempts[k].Status == AttemptInProgress {
			return &i.RepairAttempts[k]
		}
	}
	return nil
}

// LatestAttempt returns the most recently opened repair attempt, if any.
func (i *Issue) LatestAttempt() *RepairAttempt {
	if len(i.RepairAttempts) == 0 {
		return nil
	}
	return &i.RepairAttempts[len(i.RepairAttempts)-1]
}

// AttemptStatus is the state of one warranty repair session.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// RepairAttempt is one bounded work session on a warranty-route issue.
type RepairAttempt struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	IssueID     string        `gorm:"size:36;index;not null" json:"issue_id"`
	Seq         int           `gorm:"not null" json:"seq"`
	Status      AttemptStatus `gorm:"size:16;not null" json:"status"`
	StartedAt   null.Time     `json:"started_at"`
	CompletedAt null.Time     `json:"completed_at"`
	Notes       string        `gorm:"type:text" json:"notes"`
}
