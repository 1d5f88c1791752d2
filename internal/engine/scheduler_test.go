package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

func TestRegisterProduct_YearlyTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	p, tasks, err := env.engine.RegisterProduct(ctx, NewProduct{
		SerialNumber: "SN-7", ModelType: model.ModelTypePowered, City: "Riga", RegistrationDate: reg,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	for k, task := range tasks {
		assert.Equal(t, model.TaskSourceAutoYearly, task.Source)
		assert.Equal(t, model.TaskScheduled, task.Status)
		assert.Equal(t, "routine", task.MaintenanceType)
		assert.True(t, task.ScheduledDate.Time.Equal(reg.AddDate(k+1, 0, 0)))
	}

	_, _, err = env.engine.RegisterProduct(ctx, NewProduct{SerialNumber: "SN-7", ModelType: model.ModelTypeRollIn, City: "Riga"})
	assertKind(t, err, apperr.KindConflict)

	_, _, err = env.engine.RegisterProduct(ctx, NewProduct{SerialNumber: "SN-8", ModelType: "hover", City: "Riga"})
	assertKind(t, err, apperr.KindValidation)

	stored, err := env.engine.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "SN-7", stored.SerialNumber)

	all, err := env.engine.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegisterProduct_DefaultsRegistrationToToday(t *testing.T) {
	env := newTestEnv(t)
	p, tasks, err := env.engine.RegisterProduct(context.Background(), NewProduct{
		SerialNumber: "SN-9", ModelType: model.ModelTypeRollIn, City: "Tallinn",
	})
	require.NoError(t, err)
	assert.True(t, p.RegistrationDate.Equal(t0))
	assert.True(t, tasks[0].ScheduledDate.Time.Equal(t0.AddDate(1, 0, 0)))
}

func TestUpdateRegistrationDate_ReplacesOpenYearlyTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)

	p, tasks, err := env.engine.RegisterProduct(ctx, NewProduct{
		SerialNumber: "SN-1", ModelType: model.ModelTypePowered, City: "Riga", RegistrationDate: reg,
	})
	require.NoError(t, err)

	_, err = env.engine.UpdateTaskStatus(ctx, tasks[0].ID, model.TaskCompleted)
	require.NoError(t, err)

	moved := time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC)
	updated, fresh, err := env.engine.UpdateRegistrationDate(ctx, p.ID, moved)
	require.NoError(t, err)
	assert.True(t, updated.RegistrationDate.Equal(moved))

	// nothing is generated on or before the completed 2021-01-10 visit
	require.Len(t, fresh, 4)
	assert.True(t, fresh[0].ScheduledDate.Time.Equal(moved.AddDate(2, 0, 0)))

	yearly, err := env.store.ListTasks(ctx, store.TaskFilter{ProductID: p.ID, Sources: []model.TaskSource{model.TaskSourceAutoYearly}})
	require.NoError(t, err)
	require.Len(t, yearly, 5)
	assert.Equal(t, tasks[0].ID, yearly[0].ID)
	assert.Equal(t, model.TaskCompleted, yearly[0].Status)
	assert.True(t, yearly[0].ScheduledDate.Time.Equal(reg.AddDate(1, 0, 0)))

	_, _, err = env.engine.UpdateRegistrationDate(ctx, "missing", moved)
	assertKind(t, err, apperr.KindNotFound)
}

func TestScheduleTask_RollInOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "RI-1", model.ModelTypeRollIn)
	issue := env.customerIssue(t, p.ID)
	task := env.issueTasks(t, issue.ID)[0]

	_, err := env.engine.UpdateTaskStatus(ctx, task.ID, model.TaskInProgress)
	assertKind(t, err, apperr.KindInvalidTransition)

	_, err = env.engine.ScheduleTask(ctx, task.ID, time.Time{})
	assertKind(t, err, apperr.KindValidation)

	date := t0.Add(72 * time.Hour)
	scheduled, err := env.engine.ScheduleTask(ctx, task.ID, date)
	require.NoError(t, err)
	assert.Equal(t, model.TaskScheduled, scheduled.Status)
	assert.True(t, scheduled.ScheduledDate.Time.Equal(date))

	_, err = env.engine.ScheduleTask(ctx, task.ID, date.Add(time.Hour))
	assertKind(t, err, apperr.KindInvalidTransition)

	stored, err := env.engine.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.ScheduledDate.Time.Equal(date))

	_, err = env.engine.ScheduleTask(ctx, "missing", date)
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpdateTaskStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "SN-1", model.ModelTypePowered)
	issue := env.customerIssue(t, p.ID)
	task := env.issueTasks(t, issue.ID)[0]

	_, err := env.engine.UpdateTaskStatus(ctx, task.ID, model.TaskScheduled)
	assertKind(t, err, apperr.KindValidation)

	started, err := env.engine.UpdateTaskStatus(ctx, task.ID, model.TaskInProgress)
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, started.Status)

	env.clock.Advance(time.Hour)
	done, err := env.engine.UpdateTaskStatus(ctx, task.ID, model.TaskCompleted)
	require.NoError(t, err)
	assert.True(t, done.CompletedAt.Time.Equal(t0.Add(time.Hour)))

	_, err = env.engine.UpdateTaskStatus(ctx, task.ID, model.TaskCancelled)
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestListTasks_MonthWindowAndLists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	powered := env.product(t, "SN-1", model.ModelTypePowered)
	rollIn := env.product(t, "RI-1", model.ModelTypeRollIn)
	env.customerIssue(t, powered.ID)
	env.customerIssue(t, rollIn.ID)

	march, err := env.engine.ListTasks(ctx, TaskQuery{Month: 3, Year: 2026})
	require.NoError(t, err)
	// the powered issue task, both 2026-03-12 anniversaries and the roll-in pending task
	var pending, dated int
	for _, task := range march {
		if task.Status == model.TaskPendingSchedule {
			pending++
			assert.False(t, task.ScheduledDate.Valid)
			continue
		}
		dated++
		assert.Equal(t, time.March, task.ScheduledDate.Time.Month())
	}
	assert.Equal(t, 1, pending)
	assert.Equal(t, 3, dated)
	assert.Equal(t, model.TaskPendingSchedule, march[len(march)-1].Status)

	_, err = env.engine.ListTasks(ctx, TaskQuery{Month: 13, Year: 2026})
	assertKind(t, err, apperr.KindValidation)

	byProduct, err := env.engine.ListTasks(ctx, TaskQuery{ProductID: rollIn.ID, Status: model.TaskPendingSchedule})
	require.NoError(t, err)
	assert.Len(t, byProduct, 1)

	upcoming, err := env.engine.UpcomingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, model.TaskSourceCustomerIssue, upcoming[0].Source)
	counts, err := env.engine.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskCounts{Upcoming: 3, Overdue: 0}, counts)

	env.clock.Advance(13 * time.Hour)
	overdue, err := env.engine.OverdueTasks(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, powered.ID, overdue[0].ProductID)
	counts, err = env.engine.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Overdue)
	assert.Equal(t, int64(len(overdue)), counts.Overdue)
}

func TestUnavailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.MarkUnavailable(ctx, "Technician 9", "2026-03-05", "")
	assertKind(t, err, apperr.KindValidation)
	_, err = env.engine.MarkUnavailable(ctx, "Technician 1", "05.03.2026", "")
	assertKind(t, err, apperr.KindValidation)

	u, err := env.engine.MarkUnavailable(ctx, "Technician 1", "2026-03-05", " vacation ")
	require.NoError(t, err)
	assert.Equal(t, "vacation", u.Reason)

	_, err = env.engine.MarkUnavailable(ctx, "Technician 1", "2026-03-05", "")
	assertKind(t, err, apperr.KindConflict)

	days, err := env.engine.Unavailability(ctx, "")
	require.NoError(t, err)
	assert.Len(t, days, 1)

	require.NoError(t, env.engine.MarkAvailable(ctx, "Technician 1", "2026-03-05"))
	assertKind(t, env.engine.MarkAvailable(ctx, "Technician 1", "2026-03-05"), apperr.KindNotFound)
}
