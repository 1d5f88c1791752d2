// Package deadline computes SLA and warranty-repair deadlines from persisted timestamps.
// Every function is pure; callers pass the current time.
package deadline

import (
	"time"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/model"
)

// Kind names the rule a deadline comes from.
type Kind string

const (
	KindCustomerSLA    Kind = "customer_sla"
	KindWarrantyRepair Kind = "warranty_repair"
)

// Urgency buckets a deadline by how much time is left.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Deadline is the countdown view of one issue. Remaining is never negative.
type Deadline struct {
	Kind      Kind          `json:"kind"`
	DueAt     time.Time     `json:"due_at"`
	Expired   bool          `json:"expired"`
	Remaining time.Duration `json:"-"`
	Minutes   int64         `json:"remaining_minutes"`
	Urgency   Urgency       `json:"urgency"`
}

// Policy holds the windows used by the calculator.
type Policy struct {
	CustomerWindow time.Duration
	RepairWindow   time.Duration
	Warning        time.Duration
	Critical       time.Duration
}

// DefaultPolicy is 12h customer SLA, 24h warranty repair, warning under 6h, critical under 2h.
func DefaultPolicy() Policy {
	return Policy{
		CustomerWindow: 12 * time.Hour,
		RepairWindow:   24 * time.Hour,
		Warning:        6 * time.Hour,
		Critical:       2 * time.Hour,
	}
}

// PolicyFromConfig builds a Policy from the sla section.
func PolicyFromConfig(cfg config.SLAConfig) Policy {
	return Policy{
		CustomerWindow: time.Duration(cfg.CustomerHours) * time.Hour,
		RepairWindow:   time.Duration(cfg.WarrantyRepairHours) * time.Hour,
		Warning:        time.Duration(cfg.WarningHours) * time.Hour,
		Critical:       time.Duration(cfg.CriticalHours) * time.Hour,
	}
}

// CustomerSLA returns the 12h deadline of a customer-reported issue, counted from
// created_at. It is nil for technician reports, terminal issues, non-warranty
// resolutions, roll-in products and when the product or creation time is unknown.
func (p Policy) CustomerSLA(issue *model.Issue, product *model.Product, now time.Time) *Deadline {
	if issue == nil || product == nil || issue.CreatedAt.IsZero() {
		return nil
	}
	if issue.Source != model.SourceCustomer || issue.Status.Terminal() {
		return nil
	}
	if issue.WarrantyServiceType.Valid && model.ServiceType(issue.WarrantyServiceType.String) == model.ServiceNonWarranty {
		return nil
	}
	if !product.HasSLA() {
		return nil
	}
	return p.build(KindCustomerSLA, issue.CreatedAt.Add(p.CustomerWindow), now)
}

// WarrantyRepair returns the 24h repair deadline of a warranty-route issue, or of an
// issue resolved as warranty that is still being worked on. The anchor is
// warranty_repair_started_at, falling back to created_at.
func (p Policy) WarrantyRepair(issue *model.Issue, now time.Time) *Deadline {
	if issue == nil || issue.Status.Terminal() {
		return nil
	}
	applies := issue.IsWarrantyRoute
	if !applies && issue.WarrantyServiceType.Valid && model.ServiceType(issue.WarrantyServiceType.String) == model.ServiceWarranty {
		applies = issue.Status == model.IssueStatusInProgress || issue.Status == model.IssueStatusInService
	}
	if !applies {
		return nil
	}

	anchor := issue.CreatedAt
	if issue.WarrantyRepairStartedAt.Valid {
		anchor = issue.WarrantyRepairStartedAt.Time
	}
	if anchor.IsZero() {
		return nil
	}
	return p.build(KindWarrantyRepair, anchor.Add(p.RepairWindow), now)
}

// For returns the deadline that governs issue: the warranty repair clock when it
// applies, otherwise the customer SLA.
func (p Policy) For(issue *model.Issue, product *model.Product, now time.Time) *Deadline {
	if d := p.WarrantyRepair(issue, now); d != nil {
		return d
	}
	return p.CustomerSLA(issue, product, now)
}

// Classify buckets the time left before a deadline.
func (p Policy) Classify(remaining time.Duration) Urgency {
	switch {
	case remaining < p.Critical:
		return UrgencyCritical
	case remaining < p.Warning:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

func (p Policy) build(kind Kind, due, now time.Time) *Deadline {
	remaining := due.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &Deadline{
		Kind:      kind,
		DueAt:     due.UTC(),
		Expired:   remaining == 0,
		Remaining: remaining,
		Minutes:   int64(remaining / time.Minute),
		Urgency:   p.Classify(remaining),
	}
}
