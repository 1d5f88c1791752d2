package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/deadline"
	"equipment-service-backend/internal/lifecycle"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/parse"
	"equipment-service-backend/internal/store"
)

// NewIssue is the input of ReportIssue. TechnicianName is optional and assigns the
// issue right away.
type NewIssue struct {
	ProductID       string            `json:"product_id"`
	Source          model.IssueSource `json:"source"`
	Severity        model.Severity    `json:"severity"`
	IssueType       string            `json:"issue_type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	ProductLocation string            `json:"product_location"`
	TechnicianName  string            `json:"technician_name"`
}

// Payload carries the event-specific input of Transition.
type Payload struct {
	Resolution          string              `json:"resolution"`
	ServiceType         model.ServiceType   `json:"warranty_service_type"`
	EstimatedFixTime    string              `json:"estimated_fix_time"`
	EstimatedCost       decimal.NullDecimal `json:"estimated_cost"`
	CreateServiceRecord bool                `json:"create_service_record"`
	RepairNotes         string              `json:"repair_notes"`
}

// Track is the whole warranty chain an issue belongs to.
type Track struct {
	OriginalIssue        *model.Issue   `json:"original_issue"`
	WarrantyServiceIssue *model.Issue   `json:"warranty_service_issue"`
	CurrentIssue         *model.Issue   `json:"current_issue"`
	Product              *model.Product `json:"product"`
	IsWarrantyFlow       bool           `json:"is_warranty_flow"`
}

func (in *NewIssue) normalize() error {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.Title = strings.TrimSpace(in.Title)
	in.TechnicianName = strings.TrimSpace(in.TechnicianName)

	if in.ProductID == "" {
		return apperr.Validation("product_id", "product_id is required")
	}
	if !in.Source.Valid() {
		return apperr.Validation("source", "source must be technician or customer")
	}
	if in.Title == "" {
		return apperr.Validation("title", "title is required")
	}
	if in.Severity == "" && in.Source == model.SourceCustomer {
		in.Severity = model.SeverityHigh
	}
	if !in.Severity.Valid() {
		return apperr.Validation("severity", "severity must be low, medium, high or critical")
	}
	return nil
}

// ReportIssue opens an issue and materializes its maintenance task.
func (e *Engine) ReportIssue(ctx context.Context, in NewIssue) (*model.Issue, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := e.Now()

	issue := &model.Issue{
		ID:              uuid.NewString(),
		ProductID:       in.ProductID,
		Source:          in.Source,
		Status:          model.IssueStatusOpen,
		Severity:        in.Severity,
		IssueType:       in.IssueType,
		Title:           in.Title,
		Description:     in.Description,
		ProductLocation: null.NewString(in.ProductLocation, in.ProductLocation != ""),
		Version:         1,
		CreatedAt:       now,
	}

	var task *model.MaintenanceTask
	err := e.issueTransaction(ctx, func(tx store.Store) error {
		p, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if in.TechnicianName != "" {
			if err := e.checkTechnician(ctx, tx, in.TechnicianName, now); err != nil {
				return err
			}
			issue.TechnicianName = null.StringFrom(in.TechnicianName)
			issue.TechnicianAssignedAt = null.TimeFrom(now)
		}
		if issue.IssueCode, err = nextIssueCode(ctx, tx, p, now); err != nil {
			return err
		}
		if err := tx.CreateIssue(ctx, issue); err != nil {
			return err
		}
		task = e.taskForIssue(issue, p)
		return tx.CreateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("issue reported",
		zap.String("issue_id", issue.ID),
		zap.String("issue_code", issue.IssueCode),
		zap.String("source", string(issue.Source)),
		zap.String("task_id", task.ID),
		zap.String("task_status", string(task.Status)))
	return issue, nil
}

// nextIssueCode numbers the issue after the ones created the same UTC day, skipping
// codes already in use.
func nextIssueCode(ctx context.Context, tx store.Store, p *model.Product, now time.Time) (string, error) {
	from, to := parse.DayBounds(now)
	n, err := tx.CountIssuesCreated(ctx, from, to)
	if err != nil {
		return "", err
	}
	for order := int(n); ; order++ {
		code := parse.FormatIssueCode(now, p.SerialNumber, order)
		taken, err := tx.IssueCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

// AssignTechnician puts a technician on an unassigned issue. On a warranty-route
// issue it also starts the repair clock of both halves, once.
func (e *Engine) AssignTechnician(ctx context.Context, issueID, technician string) (*model.Issue, error) {
	technician = strings.TrimSpace(technician)
	unlock := e.lockIssue(issueID)
	defer unlock()

	now := e.Now()
	var (
		issue *model.Issue
		from  model.IssueStatus
	)
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		if issue, err = tx.GetIssue(ctx, issueID); err != nil {
			return err
		}
		from = issue.Status
		to, err := lifecycle.Target(issue, lifecycle.EventAssign, "")
		if err != nil {
			return err
		}
		if err := e.checkTechnician(ctx, tx, technician, now); err != nil {
			return err
		}

		issue.Status = to
		issue.TechnicianName = null.StringFrom(technician)
		issue.TechnicianAssignedAt = null.TimeFrom(now)
		startsClock := issue.IsWarrantyRoute && !issue.WarrantyRepairStartedAt.Valid
		if startsClock {
			issue.WarrantyRepairStartedAt = null.TimeFrom(now)
		}
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		if startsClock && issue.ParentIssueID.Valid {
			if err := mirrorRepairStart(ctx, tx, issue); err != nil {
				return err
			}
		}
		return assignTasks(ctx, tx, issue.ID, issue.TechnicianName)
	})
	if err != nil {
		e.rejected(err, issueID, string(lifecycle.EventAssign))
		return nil, err
	}

	e.log.Info("technician assigned",
		zap.String("issue_id", issue.ID),
		zap.String("technician", technician),
		zap.String("from", string(from)),
		zap.String("to", string(issue.Status)))
	return issue, nil
}

// Transition applies a status-changing event to an issue. The warranty chain is
// updated in the same transaction: routing creates the child, completing the repair
// resolves both halves and cancelling either half cancels both.
func (e *Engine) Transition(ctx context.Context, issueID string, ev lifecycle.Event, p Payload) (*model.Issue, error) {
	unlock := e.lockIssue(issueID)
	defer unlock()

	now := e.Now()
	var (
		issue *model.Issue
		from  model.IssueStatus
	)
	err := e.issueTransaction(ctx, func(tx store.Store) error {
		var err error
		if issue, err = tx.GetIssue(ctx, issueID); err != nil {
			return err
		}
		from = issue.Status
		to, err := lifecycle.Target(issue, ev, p.ServiceType)
		if err != nil {
			return err
		}

		switch ev {
		case lifecycle.EventMarkInProgress:
			return e.markInProgress(ctx, tx, issue, to)
		case lifecycle.EventResolve:
			if strings.TrimSpace(p.Resolution) == "" {
				return apperr.Validation("resolution", "resolution is required")
			}
			if to == model.IssueStatusInService {
				return e.routeToWarranty(ctx, tx, issue, p, now)
			}
			return e.resolve(ctx, tx, issue, p, now)
		case lifecycle.EventStartRepair:
			return e.startRepair(ctx, tx, issue, p, now)
		case lifecycle.EventPauseRepair:
			return e.pauseRepair(ctx, tx, issue, p, now)
		case lifecycle.EventCompleteRepair:
			return e.completeRepair(ctx, tx, issue, p, now)
		case lifecycle.EventMarkOpen:
			return e.reopen(ctx, tx, issue, now)
		case lifecycle.EventCancel:
			return e.cancel(ctx, tx, issue, now)
		}
		return apperr.Validation("event", "unknown event "+string(ev))
	})
	if err != nil {
		e.rejected(err, issueID, string(ev))
		return nil, err
	}

	e.log.Info("issue transitioned",
		zap.String("issue_id", issue.ID),
		zap.String("event", string(ev)),
		zap.String("from", string(from)),
		zap.String("to", string(issue.Status)))
	return issue, nil
}

func (e *Engine) markInProgress(ctx context.Context, tx store.Store, issue *model.Issue, to model.IssueStatus) error {
	if issue.Status == to {
		return nil
	}
	issue.Status = to
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	tasks, err := activeTasks(ctx, tx, issue.ID)
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].Status != model.TaskScheduled {
			continue
		}
		tasks[i].Status = model.TaskInProgress
		if err := tx.UpdateTask(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// resolve closes an issue as non-warranty work. On a warranty-route issue the
// parent is resolved with it.
func (e *Engine) resolve(ctx context.Context, tx store.Store, issue *model.Issue, p Payload, now time.Time) error {
	issue.Status = model.IssueStatusResolved
	issue.ResolvedAt = null.TimeFrom(now)
	issue.Resolution = null.StringFrom(strings.TrimSpace(p.Resolution))
	issue.WarrantyServiceType = null.StringFrom(string(model.ServiceNonWarranty))
	issue.EstimatedFixTime = null.NewString(p.EstimatedFixTime, p.EstimatedFixTime != "")
	issue.EstimatedCost = p.EstimatedCost
	if err := closeAttempt(ctx, tx, issue, now, ""); err != nil {
		return err
	}
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	if err := closeTasks(ctx, tx, issue.ID, model.TaskCompleted, now); err != nil {
		return err
	}

	if p.CreateServiceRecord {
		if err := tx.CreateServiceRecord(ctx, serviceRecord(issue, now)); err != nil {
			return err
		}
	}

	if issue.IsWarrantyRoute {
		return e.resolveParent(ctx, tx, issue, now)
	}
	return nil
}

func serviceRecord(issue *model.Issue, now time.Time) *model.ServiceRecord {
	var b strings.Builder
	b.WriteString(issue.Resolution.String)
	if issue.EstimatedFixTime.Valid {
		fmt.Fprintf(&b, "\nEstimated fix time: %s hours", issue.EstimatedFixTime.String)
	}
	if issue.EstimatedCost.Valid {
		fmt.Fprintf(&b, "\nEstimated cost: %s EUR", issue.EstimatedCost.Decimal.StringFixed(2))
	}
	issuesFound := issue.Title
	if issue.Description != "" {
		issuesFound += ": " + issue.Description
	}

	return &model.ServiceRecord{
		ID:             uuid.NewString(),
		ProductID:      issue.ProductID,
		IssueID:        issue.ID,
		TechnicianName: issue.TechnicianName.String,
		ServiceType:    "repair",
		Description:    b.String(),
		IssuesFound:    issuesFound,
		WarrantyStatus: string(model.ServiceNonWarranty),
		EstimatedCost:  issue.EstimatedCost,
		ServiceDate:    now,
	}
}

// reopen puts an issue back to open and drops its technician so it can be reassigned.
func (e *Engine) reopen(ctx context.Context, tx store.Store, issue *model.Issue, now time.Time) error {
	issue.Status = model.IssueStatusOpen
	issue.TechnicianName = null.String{}
	issue.TechnicianAssignedAt = null.Time{}
	if err := closeAttempt(ctx, tx, issue, now, ""); err != nil {
		return err
	}
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	return assignTasks(ctx, tx, issue.ID, null.String{})
}

// cancel terminates an issue and the other half of its warranty chain.
func (e *Engine) cancel(ctx context.Context, tx store.Store, issue *model.Issue, now time.Time) error {
	if err := cancelOne(ctx, tx, issue, now); err != nil {
		return err
	}

	linked := issue.ChildIssueID
	if issue.IsWarrantyRoute {
		linked = issue.ParentIssueID
	}
	if !linked.Valid {
		return nil
	}
	other, err := tx.GetIssue(ctx, linked.String)
	if err != nil {
		return err
	}
	if other.Status.Terminal() {
		return nil
	}
	return cancelOne(ctx, tx, other, now)
}

func cancelOne(ctx context.Context, tx store.Store, issue *model.Issue, now time.Time) error {
	issue.Status = model.IssueStatusCancelled
	if err := closeAttempt(ctx, tx, issue, now, ""); err != nil {
		return err
	}
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	return closeTasks(ctx, tx, issue.ID, model.TaskCancelled, now)
}

// GetIssue returns one issue with its repair attempts.
func (e *Engine) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	return e.store.GetIssue(ctx, id)
}

// ListIssues returns the issues matching f, newest first.
func (e *Engine) ListIssues(ctx context.Context, f store.IssueFilter) ([]model.Issue, error) {
	return e.store.ListIssues(ctx, f)
}

// GetDeadline returns the governing deadline of an issue, or nil when none applies.
func (e *Engine) GetDeadline(ctx context.Context, issueID string) (*deadline.Deadline, error) {
	issue, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	p, err := e.store.GetProduct(ctx, issue.ProductID)
	if err != nil {
		return nil, err
	}
	return e.policy.For(issue, p, e.Now()), nil
}

// Track returns the warranty chain around an issue. CurrentIssue is the half that
// is being worked on: the warranty service issue when one exists.
func (e *Engine) Track(ctx context.Context, issueID string) (*Track, error) {
	issue, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	t := &Track{OriginalIssue: issue}
	if issue.IsWarrantyRoute {
		t.WarrantyServiceIssue = issue
		if t.OriginalIssue, err = e.store.GetIssue(ctx, issue.ParentIssueID.String); err != nil {
			return nil, err
		}
	} else if issue.ChildIssueID.Valid {
		if t.WarrantyServiceIssue, err = e.store.GetIssue(ctx, issue.ChildIssueID.String); err != nil {
			return nil, err
		}
	}

	t.IsWarrantyFlow = t.WarrantyServiceIssue != nil
	t.CurrentIssue = t.OriginalIssue
	if t.IsWarrantyFlow {
		t.CurrentIssue = t.WarrantyServiceIssue
	}
	if t.Product, err = e.store.GetProduct(ctx, issue.ProductID); err != nil {
		return nil, err
	}
	return t, nil
}
