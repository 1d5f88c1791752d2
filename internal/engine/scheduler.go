package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// Maintenance types written on derived tasks.
const (
	MaintenanceCustomerIssue   = "customer_issue"
	MaintenanceWarrantyService = "warranty_service"
	MaintenanceIssue           = "issue"
)

// UpcomingWindow is how far ahead UpcomingTasks looks.
const UpcomingWindow = 30 * 24 * time.Hour

// yearlyTasks builds the anniversary tasks of p, skipping every anniversary on or
// before keepUntil.
func (e *Engine) yearlyTasks(p *model.Product, keepUntil time.Time) []model.MaintenanceTask {
	var tasks []model.MaintenanceTask
	for k := 1; k <= e.scheduler.YearlyTaskCount; k++ {
		date := p.RegistrationDate.UTC().AddDate(k, 0, 0)
		if !keepUntil.IsZero() && !date.After(keepUntil) {
			continue
		}
		tasks = append(tasks, model.MaintenanceTask{
			ID:              uuid.NewString(),
			ProductID:       p.ID,
			Source:          model.TaskSourceAutoYearly,
			MaintenanceType: e.scheduler.YearlyMaintenanceType,
			Status:          model.TaskScheduled,
			ScheduledDate:   null.TimeFrom(date),
			Version:         1,
		})
	}
	return tasks
}

// taskForIssue derives the calendar entry of a freshly reported issue. Powered
// products get a computed date; roll-in products wait for a technician to pick one.
func (e *Engine) taskForIssue(issue *model.Issue, p *model.Product) *model.MaintenanceTask {
	task := &model.MaintenanceTask{
		ID:             uuid.NewString(),
		ProductID:      p.ID,
		IssueID:        null.StringFrom(issue.ID),
		TechnicianName: issue.TechnicianName,
		Notes:          issue.Title,
		Version:        1,
	}

	window := e.policy.CustomerWindow
	task.Source = model.TaskSourceCustomerIssue
	task.MaintenanceType = MaintenanceCustomerIssue
	task.Priority = null.StringFrom(model.Priority12h)
	if issue.Source == model.SourceTechnician {
		window = e.policy.RepairWindow
		task.Source = model.TaskSourceIssue
		task.MaintenanceType = MaintenanceIssue
		task.Priority = null.StringFrom(model.Priority24h)
	}

	if !p.HasSLA() {
		task.Status = model.TaskPendingSchedule
		task.Priority = null.String{}
		return task
	}
	task.Status = model.TaskScheduled
	task.ScheduledDate = null.TimeFrom(issue.CreatedAt.Add(window))
	return task
}

// warrantyTask is the 24h calendar entry of a warranty-route issue.
func (e *Engine) warrantyTask(child *model.Issue, now time.Time) *model.MaintenanceTask {
	return &model.MaintenanceTask{
		ID:              uuid.NewString(),
		ProductID:       child.ProductID,
		IssueID:         null.StringFrom(child.ID),
		Source:          model.TaskSourceWarrantyService,
		MaintenanceType: MaintenanceWarrantyService,
		Priority:        null.StringFrom(model.Priority24h),
		Status:          model.TaskScheduled,
		ScheduledDate:   null.TimeFrom(now.Add(e.policy.RepairWindow)),
		Notes:           child.Title,
		Version:         1,
	}
}

// activeTasks returns the non-terminal tasks derived from an issue.
func activeTasks(ctx context.Context, tx store.Store, issueID string) ([]model.MaintenanceTask, error) {
	return tx.ListTasks(ctx, store.TaskFilter{IssueID: issueID, Statuses: activeTaskStatuses()})
}

// closeTasks moves every active task of an issue to a terminal status.
func closeTasks(ctx context.Context, tx store.Store, issueID string, to model.TaskStatus, now time.Time) error {
	tasks, err := activeTasks(ctx, tx, issueID)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].Status = to
		if to == model.TaskCompleted {
			tasks[i].CompletedAt = null.TimeFrom(now)
		}
		if err := tx.UpdateTask(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// assignTasks hands the active tasks of an issue to technician; an invalid name
// clears the assignment.
func assignTasks(ctx context.Context, tx store.Store, issueID string, technician null.String) error {
	tasks, err := activeTasks(ctx, tx, issueID)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].TechnicianName = technician
		if err := tx.UpdateTask(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleTask gives a pending_schedule task its date. A date can be assigned only once.
func (e *Engine) ScheduleTask(ctx context.Context, taskID string, date time.Time) (*model.MaintenanceTask, error) {
	if date.IsZero() {
		return nil, apperr.Validation("scheduled_date", "scheduled_date is required")
	}

	var task *model.MaintenanceTask
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != model.TaskPendingSchedule {
			return apperr.InvalidTransition(string(task.Status), "schedule").WithDetail("task_id", task.ID)
		}
		task.Status = model.TaskScheduled
		task.ScheduledDate = null.TimeFrom(date.UTC())
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("task scheduled", zap.String("task_id", task.ID), zap.Time("scheduled_date", task.ScheduledDate.Time))
	return task, nil
}

// UpdateTaskStatus moves a task along scheduled -> in_progress -> completed, or to
// cancelled. Terminal tasks never change again.
func (e *Engine) UpdateTaskStatus(ctx context.Context, taskID string, to model.TaskStatus) (*model.MaintenanceTask, error) {
	switch to {
	case model.TaskInProgress, model.TaskCompleted, model.TaskCancelled:
	default:
		return nil, apperr.Validation("status", "status must be in_progress, completed or cancelled")
	}

	var task *model.MaintenanceTask
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		from := task.Status
		if from.Terminal() || (from == model.TaskPendingSchedule && to != model.TaskCancelled) {
			return apperr.InvalidTransition(string(from), string(to)).WithDetail("task_id", task.ID)
		}
		if from == to {
			return nil
		}
		task.Status = to
		if to == model.TaskCompleted {
			task.CompletedAt = null.TimeFrom(e.Now())
		}
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("task status updated", zap.String("task_id", task.ID), zap.String("status", string(task.Status)))
	return task, nil
}

// GetTask returns one task.
func (e *Engine) GetTask(ctx context.Context, id string) (*model.MaintenanceTask, error) {
	return e.store.GetTask(ctx, id)
}

// TaskQuery selects tasks for listing. Month and Year, when both set, restrict the
// list to that calendar month plus every task still waiting for a date.
type TaskQuery struct {
	ProductID string
	Status    model.TaskStatus
	Month     int
	Year      int
}

// ListTasks returns the tasks matching q, dated ones first.
func (e *Engine) ListTasks(ctx context.Context, q TaskQuery) ([]model.MaintenanceTask, error) {
	f := store.TaskFilter{ProductID: q.ProductID}
	if q.Status != "" {
		f.Statuses = []model.TaskStatus{q.Status}
	}
	if q.Month != 0 || q.Year != 0 {
		if q.Month < 1 || q.Month > 12 || q.Year < 1 {
			return nil, apperr.Validation("month", "month and year must be given together, month in 1..12")
		}
		f.From = time.Date(q.Year, time.Month(q.Month), 1, 0, 0, 0, 0, time.UTC)
		f.To = f.From.AddDate(0, 1, 0)
		f.IncludePending = true
	}
	return e.store.ListTasks(ctx, f)
}

// TaskCounts is the size of the upcoming and overdue lists.
type TaskCounts struct {
	Upcoming int64 `json:"upcoming"`
	Overdue  int64 `json:"overdue"`
}

func (e *Engine) upcomingFilter() store.TaskFilter {
	now := e.Now()
	return store.TaskFilter{
		Statuses: []model.TaskStatus{model.TaskScheduled, model.TaskInProgress},
		From:     now,
		To:       now.Add(UpcomingWindow),
	}
}

func (e *Engine) overdueFilter() store.TaskFilter {
	return store.TaskFilter{
		Statuses: []model.TaskStatus{model.TaskScheduled, model.TaskInProgress},
		To:       e.Now(),
	}
}

// UpcomingTasks returns open dated tasks due within the next 30 days.
func (e *Engine) UpcomingTasks(ctx context.Context) ([]model.MaintenanceTask, error) {
	return e.store.ListTasks(ctx, e.upcomingFilter())
}

// OverdueTasks returns open tasks whose date has passed.
func (e *Engine) OverdueTasks(ctx context.Context) ([]model.MaintenanceTask, error) {
	return e.store.ListTasks(ctx, e.overdueFilter())
}

// CountTasks returns how many tasks UpcomingTasks and OverdueTasks would list.
func (e *Engine) CountTasks(ctx context.Context) (TaskCounts, error) {
	var c TaskCounts
	var err error
	if c.Upcoming, err = e.store.CountTasks(ctx, e.upcomingFilter()); err != nil {
		return c, err
	}
	if c.Overdue, err = e.store.CountTasks(ctx, e.overdueFilter()); err != nil {
		return c, err
	}
	return c, nil
}
