package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// NewProduct is the input of RegisterProduct.
type NewProduct struct {
	SerialNumber     string          `json:"serial_number"`
	ModelName        string          `json:"model_name"`
	ModelType        model.ModelType `json:"model_type"`
	City             string          `json:"city"`
	LocationDetail   string          `json:"location_detail"`
	RegistrationDate time.Time       `json:"registration_date"`
}

func (in NewProduct) validate() error {
	if strings.TrimSpace(in.SerialNumber) == "" {
		return apperr.Validation("serial_number", "serial_number is required")
	}
	if !in.ModelType.Valid() {
		return apperr.Validation("model_type", "model_type must be powered or roll_in")
	}
	if strings.TrimSpace(in.City) == "" {
		return apperr.Validation("city", "city is required")
	}
	return nil
}

// RegisterProduct stores a product and generates its yearly maintenance tasks. A
// missing registration date means today.
func (e *Engine) RegisterProduct(ctx context.Context, in NewProduct) (*model.Product, []model.MaintenanceTask, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	reg := in.RegistrationDate.UTC()
	if in.RegistrationDate.IsZero() {
		reg = e.Now()
	}

	p := &model.Product{
		ID:               uuid.NewString(),
		SerialNumber:     strings.TrimSpace(in.SerialNumber),
		ModelName:        in.ModelName,
		ModelType:        in.ModelType,
		City:             strings.TrimSpace(in.City),
		LocationDetail:   in.LocationDetail,
		RegistrationDate: reg,
	}
	tasks := e.yearlyTasks(p, time.Time{})

	err := e.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateProduct(ctx, p); err != nil {
			return err
		}
		for i := range tasks {
			if err := tx.CreateTask(ctx, &tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.Info("product registered",
		zap.String("product_id", p.ID),
		zap.String("serial_number", p.SerialNumber),
		zap.Int("yearly_tasks", len(tasks)))
	return p, tasks, nil
}

// UpdateRegistrationDate moves the registration date of a product and replaces
// its open yearly tasks. Completed yearly tasks stay, and no new task is generated
// on or before the latest completed one.
func (e *Engine) UpdateRegistrationDate(ctx context.Context, productID string, date time.Time) (*model.Product, []model.MaintenanceTask, error) {
	if date.IsZero() {
		return nil, nil, apperr.Validation("registration_date", "registration_date is required")
	}

	var (
		p       *model.Product
		tasks   []model.MaintenanceTask
		removed int64
	)
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		p, err = tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		p.RegistrationDate = date.UTC()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}

		if removed, err = tx.DeleteOpenYearlyTasks(ctx, p.ID); err != nil {
			return err
		}

		done, err := tx.ListTasks(ctx, store.TaskFilter{
			ProductID: p.ID,
			Sources:   []model.TaskSource{model.TaskSourceAutoYearly},
			Statuses:  []model.TaskStatus{model.TaskCompleted},
		})
		if err != nil {
			return err
		}
		var keepUntil time.Time
		for _, t := range done {
			if t.ScheduledDate.Valid && t.ScheduledDate.Time.After(keepUntil) {
				keepUntil = t.ScheduledDate.Time
			}
		}

		tasks = e.yearlyTasks(p, keepUntil)
		for i := range tasks {
			if err := tx.CreateTask(ctx, &tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.Info("registration date updated",
		zap.String("product_id", p.ID),
		zap.Time("registration_date", p.RegistrationDate),
		zap.Int64("replaced", removed),
		zap.Int("yearly_tasks", len(tasks)))
	return p, tasks, nil
}

// GetProduct returns one product.
func (e *Engine) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return e.store.GetProduct(ctx, id)
}

// ListProducts returns every product ordered by serial number.
func (e *Engine) ListProducts(ctx context.Context) ([]model.Product, error) {
	return e.store.ListProducts(ctx, nil)
}

// ServiceRecords returns the service history of a product, newest first.
func (e *Engine) ServiceRecords(ctx context.Context, productID string) ([]model.ServiceRecord, error) {
	return e.store.ListServiceRecords(ctx, productID)
}
