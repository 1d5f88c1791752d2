package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceRecord is the history entry written when a non-warranty repair is closed.
type ServiceRecord struct {
	ID             string              `gorm:"primaryKey;size:36" json:"id"`
	ProductID      string              `gorm:"size:36;index;not null" json:"product_id"`
	IssueID        string              `gorm:"size:36;index" json:"issue_id"`
	TechnicianName string              `gorm:"size:128;not null" json:"technician_name"`
	ServiceType    string              `gorm:"size:32;not null" json:"service_type"`
	Description    string              `gorm:"type:text" json:"description"`
	IssuesFound    string              `gorm:"type:text" json:"issues_found"`
	WarrantyStatus string              `gorm:"size:16" json:"warranty_status"`
	EstimatedCost  decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"estimated_cost"`
	ServiceDate    time.Time           `gorm:"not null" json:"service_date"`
	CreatedAt      time.Time           `json:"created_at"`
}
