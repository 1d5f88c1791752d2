package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/parse"
)

// MarkUnavailable records that a roster technician cannot take work on date (YYYY-MM-DD).
func (e *Engine) MarkUnavailable(ctx context.Context, technician, date, reason string) (*model.TechnicianUnavailability, error) {
	day, err := e.rosterDay(technician, date)
	if err != nil {
		return nil, err
	}
	u := &model.TechnicianUnavailability{
		TechnicianName: technician,
		Date:           day,
		Reason:         strings.TrimSpace(reason),
	}
	if err := e.store.AddUnavailability(ctx, u); err != nil {
		return nil, err
	}
	e.log.Info("technician marked unavailable", zap.String("technician", technician), zap.String("date", day))
	return u, nil
}

// MarkAvailable removes a day previously marked with MarkUnavailable.
func (e *Engine) MarkAvailable(ctx context.Context, technician, date string) error {
	day, err := e.rosterDay(technician, date)
	if err != nil {
		return err
	}
	if err := e.store.RemoveUnavailability(ctx, technician, day); err != nil {
		return err
	}
	e.log.Info("technician marked available", zap.String("technician", technician), zap.String("date", day))
	return nil
}

// Unavailability lists the unavailable days of technician, or of everyone when empty.
func (e *Engine) Unavailability(ctx context.Context, technician string) ([]model.TechnicianUnavailability, error) {
	return e.store.ListUnavailability(ctx, technician)
}

func (e *Engine) rosterDay(technician, date string) (string, error) {
	if !slices.Contains(e.roster, technician) {
		return "", apperr.Validation("technician_name", "unknown technician "+technician).WithDetail("roster", e.roster)
	}
	d, err := parse.ParseDay(date)
	if err != nil {
		return "", apperr.Validation("date", err.Error())
	}
	return d.Format(time.DateOnly), nil
}
