package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
)

// Store defines the interface for all database operations. Implementations returned
// from Transaction run every call inside the same database transaction.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	ListProducts(ctx context.Context, ids []string) ([]model.Product, error)

	CreateIssue(ctx context.Context, issue *model.Issue) error
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	UpdateIssue(ctx context.Context, issue *model.Issue) error
	ListIssues(ctx context.Context, f IssueFilter) ([]model.Issue, error)
	CountIssuesCreated(ctx context.Context, from, to time.Time) (int64, error)
	IssueCodeTaken(ctx context.Context, code string) (bool, error)
	SaveRepairAttempt(ctx context.Context, a *model.RepairAttempt) error

	CreateTask(ctx context.Context, task *model.MaintenanceTask) error
	GetTask(ctx context.Context, id string) (*model.MaintenanceTask, error)
	UpdateTask(ctx context.Context, task *model.MaintenanceTask) error
	ListTasks(ctx context.Context, f TaskFilter) ([]model.MaintenanceTask, error)
	CountTasks(ctx context.Context, f TaskFilter) (int64, error)
	DeleteOpenYearlyTasks(ctx context.Context, productID string) (int64, error)

	CreateServiceRecord(ctx context.Context, rec *model.ServiceRecord) error
	ListServiceRecords(ctx context.Context, productID string) ([]model.ServiceRecord, error)

	AddUnavailability(ctx context.Context, u *model.TechnicianUnavailability) error
	RemoveUnavailability(ctx context.Context, technician, date string) error
	ListUnavailability(ctx context.Context, technician string) ([]model.TechnicianUnavailability, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error

	Counts(ctx context.Context) (Counts, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a store bound to a single transaction. Any error
// returned by fn rolls everything back.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// --- products ---

func (s *gormStore) CreateProduct(ctx context.Context, p *model.Product) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("serial_number = ?", p.SerialNumber).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check serial number %s: %w", p.SerialNumber, err)
	}
	if n > 0 {
		return apperr.Conflict("product", "serial_number", p.SerialNumber)
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product %s: %w", p.SerialNumber, err)
	}
	return nil
}

func (s *gormStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func (s *gormStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}
	return nil
}

func (s *gormStore) ListProducts(ctx context.Context, ids []string) ([]model.Product, error) {
	q := s.db.WithContext(ctx).Order("serial_number")
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		q = q.Where("id IN ?", ids)
	}
	var products []model.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// --- issues ---

func (s *gormStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
	taken, err := s.IssueCodeTaken(ctx, issue.IssueCode)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("issue", "issue_code", issue.IssueCode)
	}
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("issue", "issue_code", issue.IssueCode)
		}
		return fmt.Errorf("failed to create issue %s: %w", issue.ID, err)
	}
	return nil
}

func (s *gormStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	var issue model.Issue
	err := s.db.WithContext(ctx).
		Preload("RepairAttempts", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&issue, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "issue", id)
	}
	return &issue, nil
}

// UpdateIssue writes every column of issue, guarded by its version. A stale version
// means someone else committed first and yields ConcurrentModification. Repair
// attempts are saved separately through SaveRepairAttempt.
func (s *gormStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	prev := issue.Version
	issue.Version = prev + 1

	res := s.db.WithContext(ctx).Model(issue).
		Where("version = ?", prev).
		Select("*").
		Omit(clause.Associations, "CreatedAt").
		Updates(issue)
	if res.Error != nil {
		issue.Version = prev
		return fmt.Errorf("failed to update issue %s: %w", issue.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		issue.Version = prev
		return apperr.ConcurrentModification("issue", issue.ID)
	}
	return nil
}

func (s *gormStore) ListIssues(ctx context.Context, f IssueFilter) ([]model.Issue, error) {
	q := s.db.WithContext(ctx).
		Preload("RepairAttempts", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Order("created_at DESC")
	if f.ProductID != "" {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}

	var issues []model.Issue
	if err := q.Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

func (s *gormStore) CountIssuesCreated(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Issue{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return n, nil
}

func (s *gormStore) IssueCodeTaken(ctx context.Context, code string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Issue{}).Where("issue_code = ?", code).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check issue code %s: %w", code, err)
	}
	return n > 0, nil
}

func (s *gormStore) SaveRepairAttempt(ctx context.Context, a *model.RepairAttempt) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to save repair attempt %s: %w", a.ID, err)
	}
	return nil
}

// --- maintenance tasks ---

func (s *gormStore) CreateTask(ctx context.Context, task *model.MaintenanceTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task for product %s: %w", task.ProductID, err)
	}
	return nil
}

func (s *gormStore) GetTask(ctx context.Context, id string) (*model.MaintenanceTask, error) {
	var task model.MaintenanceTask
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	return &task, nil
}

// UpdateTask has the same optimistic semantics as UpdateIssue.
func (s *gormStore) UpdateTask(ctx context.Context, task *model.MaintenanceTask) error {
	prev := task.Version
	task.Version = prev + 1

	res := s.db.WithContext(ctx).Model(task).
		Where("version = ?", prev).
		Select("*").
		Omit("CreatedAt").
		Updates(task)
	if res.Error != nil {
		task.Version = prev
		return fmt.Errorf("failed to update task %s: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		task.Version = prev
		return apperr.ConcurrentModification("task", task.ID)
	}
	return nil
}

// taskQuery applies f to a query on the tasks table.
func (s *gormStore) taskQuery(ctx context.Context, f TaskFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.MaintenanceTask{})
	if f.ProductID != "" {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.IssueID != "" {
		q = q.Where("issue_id = ?", f.IssueID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.Sources) > 0 {
		q = q.Where("source IN ?", f.Sources)
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		window := s.db.Session(&gorm.Session{NewDB: true})
		if !f.From.IsZero() {
			window = window.Where("scheduled_date >= ?", f.From.UTC())
		}
		if !f.To.IsZero() {
			window = window.Where("scheduled_date < ?", f.To.UTC())
		}
		if f.IncludePending {
			window = window.Or("scheduled_date IS NULL AND status = ?", model.TaskPendingSchedule)
		}
		q = q.Where(window)
	}
	return q
}

func (s *gormStore) ListTasks(ctx context.Context, f TaskFilter) ([]model.MaintenanceTask, error) {
	q := s.taskQuery(ctx, f).Order("scheduled_date ASC").Order("created_at ASC")

	var tasks []model.MaintenanceTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	// Drivers disagree on where NULLs sort; undated tasks always go last.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ScheduledDate.Valid && !tasks[j].ScheduledDate.Valid
	})
	return tasks, nil
}

func (s *gormStore) CountTasks(ctx context.Context, f TaskFilter) (int64, error) {
	var n int64
	if err := s.taskQuery(ctx, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// DeleteOpenYearlyTasks removes the auto_yearly tasks of a product that have not
// been completed. Completed ones are history and stay.
func (s *gormStore) DeleteOpenYearlyTasks(ctx context.Context, productID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("product_id = ? AND source = ? AND status <> ?", productID, model.TaskSourceAutoYearly, model.TaskCompleted).
		Delete(&model.MaintenanceTask{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete yearly tasks of product %s: %w", productID, res.Error)
	}
	return res.RowsAffected, nil
}

// --- service records ---

func (s *gormStore) CreateServiceRecord(ctx context.Context, rec *model.ServiceRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create service record for product %s: %w", rec.ProductID, err)
	}
	return nil
}

func (s *gormStore) ListServiceRecords(ctx context.Context, productID string) ([]model.ServiceRecord, error) {
	q := s.db.WithContext(ctx).Order("service_date DESC")
	if productID != "" {
		q = q.Where("product_id = ?", productID)
	}
	var recs []model.ServiceRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list service records: %w", err)
	}
	return recs, nil
}

// --- technician availability ---

func (s *gormStore) AddUnavailability(ctx context.Context, u *model.TechnicianUnavailability) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.TechnicianUnavailability{}).
		Where("technician_name = ? AND date = ?", u.TechnicianName, u.Date).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to check unavailability: %w", err)
	}
	if n > 0 {
		return apperr.Conflict("unavailable day", "date", u.Date)
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to add unavailable day: %w", err)
	}
	return nil
}

func (s *gormStore) RemoveUnavailability(ctx context.Context, technician, date string) error {
	res := s.db.WithContext(ctx).
		Where("technician_name = ? AND date = ?", technician, date).
		Delete(&model.TechnicianUnavailability{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove unavailable day: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("unavailable day", technician+"/"+date)
	}
	return nil
}

func (s *gormStore) ListUnavailability(ctx context.Context, technician string) ([]model.TechnicianUnavailability, error) {
	q := s.db.WithContext(ctx).Order("date ASC")
	if technician != "" {
		q = q.Where("technician_name = ?", technician)
	}
	var days []model.TechnicianUnavailability
	if err := q.Find(&days).Error; err != nil {
		return nil, fmt.Errorf("failed to list unavailable days: %w", err)
	}
	return days, nil
}

// --- push subscriptions ---

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"technician_name", "p256dh", "auth"}),
	}).Create(sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// --- stats ---

func (s *gormStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Product{}).Count(&c.Products).Error; err != nil {
		return c, fmt.Errorf("failed to count products: %w", err)
	}
	if err := db.Model(&model.ServiceRecord{}).Count(&c.ServiceRecords).Error; err != nil {
		return c, fmt.Errorf("failed to count service records: %w", err)
	}
	if err := db.Model(&model.Issue{}).Where("status = ?", model.IssueStatusOpen).Count(&c.OpenIssues).Error; err != nil {
		return c, fmt.Errorf("failed to count open issues: %w", err)
	}
	if err := db.Model(&model.Issue{}).Where("status = ?", model.IssueStatusResolved).Count(&c.ResolvedIssues).Error; err != nil {
		return c, fmt.Errorf("failed to count resolved issues: %w", err)
	}
	return c, nil
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", resource, id, err)
}
