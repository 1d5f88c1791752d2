package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/lifecycle"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// DefaultRepairResolution is recorded when a repair is completed without notes.
const DefaultRepairResolution = "Warranty repair completed"

// routeToWarranty parks the parent in in_service and forks the warranty service
// issue with its first pending attempt and its 24h task.
func (e *Engine) routeToWarranty(ctx context.Context, tx store.Store, parent *model.Issue, p Payload, now time.Time) error {
	product, err := tx.GetProduct(ctx, parent.ProductID)
	if err != nil {
		return err
	}

	resolution := strings.TrimSpace(p.Resolution)
	child := &model.Issue{
		ID:                  uuid.NewString(),
		ProductID:           parent.ProductID,
		Source:              parent.Source,
		Status:              model.IssueStatusInService,
		Severity:            parent.Severity,
		IssueType:           parent.IssueType,
		Title:               parent.Title,
		Description:         parent.Description,
		ProductLocation:     parent.ProductLocation,
		WarrantyServiceType: null.StringFrom(string(model.ServiceWarranty)),
		IsWarrantyRoute:     true,
		ParentIssueID:       null.StringFrom(parent.ID),
		Version:             1,
		CreatedAt:           now,
	}
	if child.IssueCode, err = nextIssueCode(ctx, tx, product, now); err != nil {
		return err
	}
	if err := tx.CreateIssue(ctx, child); err != nil {
		return err
	}

	first := model.RepairAttempt{
		ID:      uuid.NewString(),
		IssueID: child.ID,
		Seq:     1,
		Status:  model.AttemptPending,
		Notes:   resolution,
	}
	if err := tx.SaveRepairAttempt(ctx, &first); err != nil {
		return err
	}
	child.RepairAttempts = []model.RepairAttempt{first}

	parent.Status = model.IssueStatusInService
	parent.Resolution = null.StringFrom(resolution)
	parent.WarrantyServiceType = null.StringFrom(string(model.ServiceWarranty))
	parent.WarrantyRepairStartedAt = null.TimeFrom(now)
	parent.ChildIssueID = null.StringFrom(child.ID)
	if err := tx.UpdateIssue(ctx, parent); err != nil {
		return err
	}

	if err := closeTasks(ctx, tx, parent.ID, model.TaskCompleted, now); err != nil {
		return err
	}
	return tx.CreateTask(ctx, e.warrantyTask(child, now))
}

// mirrorRepairStart copies the repair clock of a warranty-route issue onto its
// parent so both halves report the same deadline.
func mirrorRepairStart(ctx context.Context, tx store.Store, child *model.Issue) error {
	parent, err := tx.GetIssue(ctx, child.ParentIssueID.String)
	if err != nil {
		return err
	}
	if parent.WarrantyRepairStartedAt.Valid && parent.WarrantyRepairStartedAt.Time.Equal(child.WarrantyRepairStartedAt.Time) {
		return nil
	}
	parent.WarrantyRepairStartedAt = child.WarrantyRepairStartedAt
	return tx.UpdateIssue(ctx, parent)
}

// startRepair opens a work session. The pending attempt left by routing is used
// first; after that each start appends a new attempt.
func (e *Engine) startRepair(ctx context.Context, tx store.Store, issue *model.Issue, p Payload, now time.Time) error {
	if issue.ActiveAttempt() != nil {
		return apperr.InvalidTransition(string(issue.Status), string(lifecycle.EventStartRepair)).
			WithDetail("issue_id", issue.ID).
			WithDetail("reason", "a repair attempt is already in progress")
	}

	attempt := issue.LatestAttempt()
	if attempt == nil || attempt.Status != model.AttemptPending {
		issue.RepairAttempts = append(issue.RepairAttempts, model.RepairAttempt{
			ID:      uuid.NewString(),
			IssueID: issue.ID,
			Seq:     len(issue.RepairAttempts) + 1,
		})
		attempt = issue.LatestAttempt()
	}
	attempt.Status = model.AttemptInProgress
	attempt.StartedAt = null.TimeFrom(now)
	if notes := strings.TrimSpace(p.RepairNotes); notes != "" {
		attempt.Notes = notes
	}
	if err := tx.SaveRepairAttempt(ctx, attempt); err != nil {
		return err
	}
	return tx.UpdateIssue(ctx, issue)
}

// pauseRepair closes the running session without resolving the issue.
func (e *Engine) pauseRepair(ctx context.Context, tx store.Store, issue *model.Issue, p Payload, now time.Time) error {
	if issue.ActiveAttempt() == nil {
		return apperr.InvalidTransition(string(issue.Status), string(lifecycle.EventPauseRepair)).
			WithDetail("issue_id", issue.ID).
			WithDetail("reason", "no repair attempt is in progress")
	}
	if err := closeAttempt(ctx, tx, issue, now, p.RepairNotes); err != nil {
		return err
	}
	return tx.UpdateIssue(ctx, issue)
}

// completeRepair resolves the warranty service issue and cascades to its parent.
// Completing without a running session records one that starts and ends now.
func (e *Engine) completeRepair(ctx context.Context, tx store.Store, issue *model.Issue, p Payload, now time.Time) error {
	notes := strings.TrimSpace(p.RepairNotes)
	if issue.ActiveAttempt() == nil {
		attempt := issue.LatestAttempt()
		if attempt == nil || attempt.Status != model.AttemptPending {
			issue.RepairAttempts = append(issue.RepairAttempts, model.RepairAttempt{
				ID:      uuid.NewString(),
				IssueID: issue.ID,
				Seq:     len(issue.RepairAttempts) + 1,
			})
			attempt = issue.LatestAttempt()
		}
		attempt.Status = model.AttemptInProgress
		attempt.StartedAt = null.TimeFrom(now)
	}
	if err := closeAttempt(ctx, tx, issue, now, notes); err != nil {
		return err
	}

	resolution := notes
	if resolution == "" {
		resolution = DefaultRepairResolution
	}
	issue.Status = model.IssueStatusResolved
	issue.ResolvedAt = null.TimeFrom(now)
	issue.Resolution = null.StringFrom(resolution)
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	if err := closeTasks(ctx, tx, issue.ID, model.TaskCompleted, now); err != nil {
		return err
	}
	return e.resolveParent(ctx, tx, issue, now)
}

// resolveParent mirrors the child's resolution onto its parent.
func (e *Engine) resolveParent(ctx context.Context, tx store.Store, child *model.Issue, now time.Time) error {
	parent, err := tx.GetIssue(ctx, child.ParentIssueID.String)
	if err != nil {
		return err
	}
	if parent.Status.Terminal() {
		return nil
	}
	parent.Status = model.IssueStatusResolved
	parent.ResolvedAt = child.ResolvedAt
	if !parent.Resolution.Valid || parent.Resolution.String == "" {
		parent.Resolution = child.Resolution
	}
	if err := tx.UpdateIssue(ctx, parent); err != nil {
		return err
	}
	return closeTasks(ctx, tx, parent.ID, model.TaskCompleted, now)
}

// closeAttempt completes the running attempt of issue, if any.
func closeAttempt(ctx context.Context, tx store.Store, issue *model.Issue, now time.Time, notes string) error {
	attempt := issue.ActiveAttempt()
	if attempt == nil {
		return nil
	}
	attempt.Status = model.AttemptCompleted
	attempt.CompletedAt = null.TimeFrom(now)
	if notes = strings.TrimSpace(notes); notes != "" {
		attempt.Notes = notes
	}
	return tx.SaveRepairAttempt(ctx, attempt)
}
