// Package engine runs the issue lifecycle, warranty routing and maintenance
// scheduling rules on top of the store. Every mutation runs in one transaction and
// mutations of the same issue are serialized.
package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/deadline"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// Engine is the single entry point for issue, task and product mutations.
type Engine struct {
	store     store.Store
	policy    deadline.Policy
	roster    []string
	scheduler config.SchedulerConfig
	log       *zap.Logger
	clock     Clock

	locksMu sync.Mutex
	locks   map[string]*issueLock
}

type issueLock struct {
	mu   sync.Mutex
	refs int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an engine using the sla, scheduler and roster sections of cfg.
func New(s store.Store, cfg *config.Config, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		policy:    deadline.PolicyFromConfig(cfg.SLA),
		roster:    slices.Clone(cfg.Roster.Technicians),
		scheduler: cfg.Scheduler,
		log:       log,
		clock:     time.Now,
		locks:     make(map[string]*issueLock),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns the deadline windows the engine schedules with.
func (e *Engine) Policy() deadline.Policy {
	return e.policy
}

// Roster returns the technicians work can be assigned to.
func (e *Engine) Roster() []string {
	return slices.Clone(e.roster)
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.clock().UTC()
}

// lockIssue serializes mutations of one issue within this process. Writers in
// other processes are caught by the version check in the store. The entry for id
// is dropped once no caller holds or waits for it.
func (e *Engine) lockIssue(id string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &issueLock{}
		e.locks[id] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.locksMu.Unlock()
	}
}

func (e *Engine) heldLocks() int {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	return len(e.locks)
}

// issueCodeAttempts bounds how often a transaction that numbers a new issue is
// rerun after another writer took the same code.
const issueCodeAttempts = 3

// issueTransaction runs fn like store.Transaction and reruns it when the issue code
// it allocated was committed by a concurrent writer first.
func (e *Engine) issueTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	var err error
	for attempt := 1; attempt <= issueCodeAttempts; attempt++ {
		if err = e.store.Transaction(ctx, fn); !isIssueCodeConflict(err) {
			return err
		}
		e.log.Warn("issue code taken, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func isIssueCodeConflict(err error) bool {
	var appErr *apperr.Error
	return errors.As(err, &appErr) && appErr.Kind == apperr.KindConflict && appErr.Details["field"] == "issue_code"
}

// checkTechnician verifies name is on the roster and not marked unavailable on day.
func (e *Engine) checkTechnician(ctx context.Context, tx store.Store, name string, day time.Time) error {
	if name == "" {
		return apperr.Validation("technician_name", "technician_name is required")
	}
	if !slices.Contains(e.roster, name) {
		return apperr.Validation("technician_name", "unknown technician "+name).WithDetail("roster", e.roster)
	}
	days, err := tx.ListUnavailability(ctx, name)
	if err != nil {
		return err
	}
	date := day.UTC().Format(time.DateOnly)
	for _, d := range days {
		if d.Date == date {
			return apperr.Validation("technician_name", name+" is unavailable on "+date).WithDetail("date", date)
		}
	}
	return nil
}

// Stats returns the headline counters.
func (e *Engine) Stats(ctx context.Context) (store.Counts, error) {
	return e.store.Counts(ctx)
}

func (e *Engine) rejected(err error, issueID string, ev string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		e.log.Warn("issue mutation rejected", zap.String("issue_id", issueID), zap.String("event", ev), zap.Error(err))
	}
}

func activeTaskStatuses() []model.TaskStatus {
	return []model.TaskStatus{model.TaskPendingSchedule, model.TaskScheduled, model.TaskInProgress}
}
