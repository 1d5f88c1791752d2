package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/db"
	"equipment-service-backend/internal/deadline"
	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/lifecycle"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/notification"
	"equipment-service-backend/internal/projection"
	"equipment-service-backend/internal/store"
)

// capturingSender records every push instead of sending it.
type capturingSender struct {
	sent chan notification.Alert
}

func (s *capturingSender) Send(payload []byte, _ *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	var a notification.Alert
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, err
	}
	s.sent <- a
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (s *capturingSender) next(t *testing.T) notification.Alert {
	t.Helper()
	select {
	case a := <-s.sent:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
		return notification.Alert{}
	}
}

// TestWarrantyFlowEndToEnd drives a customer issue from report to the completed
// warranty repair, checking deadlines, projections and alerts along the way.
func TestWarrantyFlowEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Setup ---
	testDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	cfg := &config.Config{}
	cfg.Scanner.Enabled = true
	cfg.ApplyDefaults()

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := store.NewGormStore(testDB)
	eng := engine.New(s, cfg, zap.NewNop(), engine.WithClock(clock))
	projector := projection.NewProjector(s, eng.Policy(), eng.Roster(), clock)

	sender := &capturingSender{sent: make(chan notification.Alert, 8)}
	pool := notification.NewWorkerPool(1, testDB, &webpush.Options{}, zap.NewNop())
	pool.SetSender(sender)
	pool.Start(ctx)
	scanner := notification.NewScanner(cfg.Scanner, projector, pool, zap.NewNop())

	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{
		Endpoint:       "https://push.example/tech-1",
		TechnicianName: "Technician 1",
		P256DH:         "key",
		Auth:           "auth",
		CreatedAt:      now,
	}))

	product, yearly, err := eng.RegisterProduct(ctx, engine.NewProduct{
		SerialNumber:     "SN-0042",
		ModelType:        model.ModelTypePowered,
		City:             "Vilnius",
		RegistrationDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, yearly, 5)

	// --- Report: the unassigned issue is alerted ---
	issue, err := eng.ReportIssue(ctx, engine.NewIssue{
		ProductID: product.ID,
		Source:    model.SourceCustomer,
		Title:     "Bed does not lower",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026_SN-0042_03_02_0", issue.IssueCode)

	assert.Equal(t, 1, scanner.ScanOnce(ctx))
	alert := sender.next(t)
	assert.Equal(t, issue.ID, alert.IssueID)
	assert.Equal(t, deadline.UrgencyNormal, alert.Urgency)
	assert.Equal(t, int64(720), alert.RemainingMinutes)

	now = now.Add(7 * time.Hour)
	assert.Equal(t, 1, scanner.ScanOnce(ctx))
	assert.Equal(t, deadline.UrgencyWarning, sender.next(t).Urgency)
	assert.Equal(t, 0, scanner.ScanOnce(ctx))

	// --- Assign and route to warranty ---
	_, err = eng.AssignTechnician(ctx, issue.ID, "Technician 1")
	require.NoError(t, err)
	_, err = eng.Transition(ctx, issue.ID, lifecycle.EventMarkInProgress, engine.Payload{})
	require.NoError(t, err)

	parent, err := eng.Transition(ctx, issue.ID, lifecycle.EventResolve, engine.Payload{
		Resolution:  "Motor fault, covered by warranty",
		ServiceType: model.ServiceWarranty,
	})
	require.NoError(t, err)
	require.True(t, parent.ChildIssueID.Valid)
	childID := parent.ChildIssueID.String

	feed, err := projector.NotificationFeed(ctx)
	require.NoError(t, err)
	assert.Empty(t, feed)

	unassigned, err := projector.Unassigned(ctx)
	require.NoError(t, err)
	require.Len(t, unassigned.Issues, 1)
	assert.Equal(t, childID, unassigned.Issues[0].ID)

	d, err := eng.GetDeadline(ctx, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, deadline.KindWarrantyRepair, d.Kind)
	assert.Equal(t, int64(24*60), d.Minutes)

	// --- Warranty repair ---
	now = now.Add(2 * time.Hour)
	_, err = eng.AssignTechnician(ctx, childID, "Technician 2")
	require.NoError(t, err)

	workload, err := projector.Workload(ctx)
	require.NoError(t, err)
	require.Len(t, workload, 3)
	assert.Equal(t, 1, workload[1].OpenIssues)
	assert.Equal(t, 1, workload[1].TasksBySource[model.TaskSourceWarrantyService])

	_, err = eng.Transition(ctx, childID, lifecycle.EventStartRepair, engine.Payload{})
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)
	_, err = eng.Transition(ctx, childID, lifecycle.EventPauseRepair, engine.Payload{RepairNotes: "waiting for part"})
	require.NoError(t, err)
	now = now.Add(5 * time.Hour)
	child, err := eng.Transition(ctx, childID, lifecycle.EventCompleteRepair, engine.Payload{RepairNotes: "Motor replaced"})
	require.NoError(t, err)
	assert.Equal(t, model.IssueStatusResolved, child.Status)
	require.Len(t, child.RepairAttempts, 2)

	track, err := eng.Track(ctx, issue.ID)
	require.NoError(t, err)
	assert.True(t, track.IsWarrantyFlow)
	assert.Equal(t, model.IssueStatusResolved, track.OriginalIssue.Status)
	assert.True(t, track.OriginalIssue.ResolvedAt.Time.Equal(now))
	assert.Equal(t, childID, track.CurrentIssue.ID)

	// --- Nothing is left open ---
	open, err := s.ListTasks(ctx, store.TaskFilter{
		ProductID: product.ID,
		Sources:   []model.TaskSource{model.TaskSourceCustomerIssue, model.TaskSourceWarrantyService},
		Statuses:  []model.TaskStatus{model.TaskPendingSchedule, model.TaskScheduled, model.TaskInProgress},
	})
	require.NoError(t, err)
	assert.Empty(t, open)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ResolvedIssues)
	assert.Equal(t, int64(0), stats.OpenIssues)
	assert.Equal(t, 0, scanner.ScanOnce(ctx))
}
