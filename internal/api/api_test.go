package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/projection"
	"equipment-service-backend/internal/store"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	now    time.Time
	push   *webpush.Options
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.ApplyDefaults()

	ts := &testServer{now: t0, push: &webpush.Options{}}
	clock := func() time.Time { return ts.now }

	s := store.NewGormStore(gormDB)
	e := engine.New(s, cfg, zap.NewNop(), engine.WithClock(clock))
	p := projection.NewProjector(s, e.Policy(), e.Roster(), clock)
	ts.router = NewRouter(NewHandler(e, p, s, ts.push, zap.NewNop()), cfg.Server, zap.NewNop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[errorBody](t, w).Error.Code)
}

func (ts *testServer) product(t *testing.T, serial string, mt model.ModelType) model.Product {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/products", gin.H{
		"serial_number":     serial,
		"model_type":        mt,
		"city":              "Vilnius",
		"registration_date": "2025-03-12",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return *decode[productResponse](t, w).Product
}

func (ts *testServer) issue(t *testing.T, productID string) model.Issue {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/issues", gin.H{
		"product_id": productID,
		"source":     "customer",
		"title":      "Bed does not lower",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Issue](t, w)
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/products", gin.H{
		"serial_number":     "SN-1",
		"model_type":        "powered",
		"city":              "Vilnius",
		"registration_date": "2025-03-12",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[productResponse](t, w)
	assert.Len(t, created.Tasks, 5)

	w = ts.do(t, http.MethodGet, "/api/products/"+created.Product.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SN-1", decode[model.Product](t, w).SerialNumber)

	w = ts.do(t, http.MethodPost, "/api/products", gin.H{"serial_number": "SN-1", "model_type": "powered", "city": "Kaunas"})
	assertError(t, w, http.StatusConflict, "CONFLICT")

	w = ts.do(t, http.MethodPost, "/api/products", gin.H{"serial_number": "SN-2", "model_type": "powered", "city": "Kaunas", "registration_date": "12/03/2025"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodPut, "/api/products/"+created.Product.ID+"/registration-date", gin.H{"registration_date": "2025-06-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[productResponse](t, w)
	require.Len(t, moved.Tasks, 5)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), moved.Tasks[0].ScheduledDate.Time.UTC())

	w = ts.do(t, http.MethodGet, "/api/products/missing", nil)
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = ts.do(t, http.MethodGet, "/api/products", nil)
	assert.Len(t, decode[[]model.Product](t, w), 1)
}

func TestIssueLifecycle(t *testing.T) {
	ts := newTestServer(t)
	p := ts.product(t, "SN-42", model.ModelTypePowered)
	issue := ts.issue(t, p.ID)
	assert.Equal(t, model.IssueStatusOpen, issue.Status)
	assert.Equal(t, model.SeverityHigh, issue.Severity)

	ts.now = t0.Add(time.Hour)
	w := ts.do(t, http.MethodGet, "/api/issues/"+issue.ID+"/deadline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[struct {
		Deadline *deadline.Deadline `json:"deadline"`
	}](t, w).Deadline
	require.NotNil(t, d)
	assert.Equal(t, int64(660), d.Minutes)
	assert.Equal(t, deadline.UrgencyNormal, d.Urgency)

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{"event": "mark_in_progress"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/assign", gin.H{"technician_name": "Nobody"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/assign", gin.H{"technician_name": "Technician 1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Technician 1", decode[model.Issue](t, w).TechnicianName.String)

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/assign", gin.H{"technician_name": "Technician 2"})
	assertError(t, w, http.StatusConflict, "ALREADY_ASSIGNED")

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{"event": "teleport"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{"event": "mark_in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{
		"event": "resolve",
		"payload": gin.H{
			"resolution":            "Motor fault, covered by warranty",
			"warranty_service_type": "warranty",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	parent := decode[model.Issue](t, w)
	assert.Equal(t, model.IssueStatusInService, parent.Status)
	require.True(t, parent.ChildIssueID.Valid)

	w = ts.do(t, http.MethodGet, "/api/issues/"+issue.ID+"/track", nil)
	require.Equal(t, http.StatusOK, w.Code)
	track := decode[engine.Track](t, w)
	assert.True(t, track.IsWarrantyFlow)
	assert.Equal(t, parent.ChildIssueID.String, track.CurrentIssue.ID)

	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{
		"event":   "resolve",
		"payload": gin.H{"resolution": "again", "warranty_service_type": "warranty"},
	})
	assertError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	childID := parent.ChildIssueID.String
	w = ts.do(t, http.MethodPost, "/api/issues/"+childID+"/assign", gin.H{"technician_name": "Technician 2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/issues/"+childID+"/transitions", gin.H{
		"event":   "complete_repair",
		"payload": gin.H{"repair_notes": "Replaced motor"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.IssueStatusResolved, decode[model.Issue](t, w).Status)

	w = ts.do(t, http.MethodGet, "/api/issues/"+issue.ID, nil)
	assert.Equal(t, model.IssueStatusResolved, decode[model.Issue](t, w).Status)

	w = ts.do(t, http.MethodGet, "/api/issues?status=resolved&product_id="+p.ID, nil)
	assert.Len(t, decode[[]model.Issue](t, w), 2)

	w = ts.do(t, http.MethodGet, "/api/issues/missing/deadline", nil)
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestResolveNonWarrantyWithCost(t *testing.T) {
	ts := newTestServer(t)
	p := ts.product(t, "SN-7", model.ModelTypePowered)
	issue := ts.issue(t, p.ID)
	ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/assign", gin.H{"technician_name": "Technician 3"})
	ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{"event": "mark_in_progress"})

	w := ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/transitions", gin.H{
		"event": "resolve",
		"payload": gin.H{
			"resolution":            "Replaced actuator",
			"warranty_service_type": "non_warranty",
			"estimated_cost":        "120.50",
			"create_service_record": true,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/products/"+p.ID+"/service-records", nil)
	recs := decode[[]model.ServiceRecord](t, w)
	require.Len(t, recs, 1)
	require.True(t, recs[0].EstimatedCost.Valid)
	assert.True(t, recs[0].EstimatedCost.Decimal.Equal(decimal.RequireFromString("120.5")))

	w = ts.do(t, http.MethodGet, "/api/stats", nil)
	assert.JSONEq(t, `{"total_products":1,"total_services":1,"open_issues":0,"resolved_issues":1}`, w.Body.String())
}

func TestTasks(t *testing.T) {
	ts := newTestServer(t)
	rollIn := ts.product(t, "SN-R", model.ModelTypeRollIn)
	issue := ts.issue(t, rollIn.ID)

	w := ts.do(t, http.MethodGet, "/api/tasks?month=3&year=2026", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]model.MaintenanceTask](t, w)
	require.Len(t, tasks, 2)

	var pending model.MaintenanceTask
	for _, task := range tasks {
		if task.IssueID.String == issue.ID {
			pending = task
		}
	}
	require.Equal(t, model.TaskPendingSchedule, pending.Status)

	w = ts.do(t, http.MethodGet, "/api/tasks?month=13&year=2026", nil)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	w = ts.do(t, http.MethodGet, "/api/tasks?month=march", nil)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodPost, "/api/tasks/"+pending.ID+"/schedule", gin.H{"scheduled_date": "2026-03-04"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.TaskScheduled, decode[model.MaintenanceTask](t, w).Status)

	w = ts.do(t, http.MethodPost, "/api/tasks/"+pending.ID+"/schedule", gin.H{"scheduled_date": "2026-03-05"})
	assertError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	w = ts.do(t, http.MethodGet, "/api/tasks/upcoming", nil)
	assert.Len(t, decode[[]model.MaintenanceTask](t, w), 2)
	w = ts.do(t, http.MethodGet, "/api/tasks/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upcoming":2,"overdue":0}`, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/tasks/"+pending.ID+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[model.MaintenanceTask](t, w).CompletedAt.Valid)

	w = ts.do(t, http.MethodGet, "/api/tasks/"+pending.ID, nil)
	assert.Equal(t, model.TaskCompleted, decode[model.MaintenanceTask](t, w).Status)

	w = ts.do(t, http.MethodGet, "/api/tasks/overdue", nil)
	assert.Empty(t, decode[[]model.MaintenanceTask](t, w))
}

func TestProjections(t *testing.T) {
	ts := newTestServer(t)
	p := ts.product(t, "SN-P", model.ModelTypePowered)
	first := ts.issue(t, p.ID)
	ts.now = t0.Add(2 * time.Hour)
	second := ts.issue(t, p.ID)
	ts.do(t, http.MethodPost, "/api/issues/"+first.ID+"/assign", gin.H{"technician_name": "Technician 2"})

	w := ts.do(t, http.MethodGet, "/api/projections/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[[]projection.FeedItem](t, w)
	require.Len(t, feed, 1)
	assert.Equal(t, second.ID, feed[0].Issue.ID)

	w = ts.do(t, http.MethodGet, "/api/projections/workload", nil)
	loads := decode[[]projection.TechnicianLoad](t, w)
	require.Len(t, loads, 3)
	assert.Equal(t, "Technician 2", loads[1].TechnicianName)
	assert.Equal(t, 1, loads[1].OpenIssues)
	assert.Equal(t, 1, loads[1].OpenTasks)

	w = ts.do(t, http.MethodGet, "/api/projections/unassigned", nil)
	u := decode[projection.Unassigned](t, w)
	require.Len(t, u.Issues, 1)
	assert.Equal(t, second.ID, u.Issues[0].ID)

	w = ts.do(t, http.MethodGet, "/api/projections/calendar?from=2026-03-01&to=2026-04-01", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cal := decode[projection.Calendar](t, w)
	assert.Len(t, cal.Upcoming, 3)

	w = ts.do(t, http.MethodGet, "/api/projections/calendar?from=2026-04-01&to=2026-03-01", nil)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestTechnicians(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/technicians/Technician%201/unavailable/2026-03-02", gin.H{"reason": "training"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "training", decode[model.TechnicianUnavailability](t, w).Reason)

	w = ts.do(t, http.MethodPost, "/api/technicians/Technician%201/unavailable/2026-03-02", nil)
	assertError(t, w, http.StatusConflict, "CONFLICT")

	w = ts.do(t, http.MethodPost, "/api/technicians/Nobody/unavailable/2026-03-02", nil)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	p := ts.product(t, "SN-T", model.ModelTypePowered)
	issue := ts.issue(t, p.ID)
	w = ts.do(t, http.MethodPost, "/api/issues/"+issue.ID+"/assign", gin.H{"technician_name": "Technician 1"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = ts.do(t, http.MethodGet, "/api/technicians", nil)
	var roster struct {
		Technicians []string                         `json:"technicians"`
		Unavailable []model.TechnicianUnavailability `json:"unavailable"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	assert.Equal(t, []string{"Technician 1", "Technician 2", "Technician 3"}, roster.Technicians)
	assert.Len(t, roster.Unavailable, 1)

	w = ts.do(t, http.MethodDelete, "/api/technicians/Technician%201/unavailable/2026-03-02", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/technicians/Technician%201/unavailable/2026-03-02", nil)
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/subscriptions", nil)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	sub := gin.H{"endpoint": "https://push.example/1", "p256dh": "k", "auth": "a", "technician_name": "Nobody"}
	w = ts.do(t, http.MethodPut, "/api/subscriptions", sub)
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	sub["technician_name"] = "Technician 1"
	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/subscriptions", sub).Code)
	sub["auth"] = "b"
	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/subscriptions", sub).Code)

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assertError(t, w, http.StatusServiceUnavailable, "PUSH_DISABLED")

	ts.push.VAPIDPublicKey = "BPublic"
	w = ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublic"}`, w.Body.String())
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, zap.NewNop())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/stats", nil)

	h.respondError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`, w.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/stats", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
