package deadline

import (
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/model"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func customerIssue() *model.Issue {
	return &model.Issue{
		ID:        "i-1",
		Source:    model.SourceCustomer,
		Status:    model.IssueStatusOpen,
		Severity:  model.SeverityHigh,
		CreatedAt: t0,
	}
}

var (
	powered = &model.Product{ID: "p-1", ModelType: model.ModelTypePowered}
	rollIn  = &model.Product{ID: "p-2", ModelType: model.ModelTypeRollIn}
)

func TestCustomerSLA_Countdown(t *testing.T) {
	p := DefaultPolicy()
	issue := customerIssue()

	d := p.CustomerSLA(issue, powered, t0.Add(11*time.Hour+59*time.Minute))
	require.NotNil(t, d)
	assert.False(t, d.Expired)
	assert.Equal(t, time.Minute, d.Remaining)
	assert.Equal(t, int64(1), d.Minutes)
	assert.Equal(t, t0.Add(12*time.Hour), d.DueAt)
	assert.Equal(t, UrgencyCritical, d.Urgency)

	d = p.CustomerSLA(issue, powered, t0.Add(12*time.Hour+time.Minute))
	require.NotNil(t, d)
	assert.True(t, d.Expired)
	assert.Equal(t, time.Duration(0), d.Remaining)
}

func TestCustomerSLA_NotApplicable(t *testing.T) {
	p := DefaultPolicy()
	now := t0.Add(time.Hour)

	tests := []struct {
		name    string
		mutate  func(i *model.Issue)
		product *model.Product
	}{
		{"roll-in product", func(i *model.Issue) {}, rollIn},
		{"technician source", func(i *model.Issue) { i.Source = model.SourceTechnician }, powered},
		{"resolved", func(i *model.Issue) { i.Status = model.IssueStatusResolved }, powered},
		{"cancelled", func(i *model.Issue) { i.Status = model.IssueStatusCancelled }, powered},
		{"non warranty", func(i *model.Issue) { i.WarrantyServiceType = null.StringFrom("non_warranty") }, powered},
		{"missing created_at", func(i *model.Issue) { i.CreatedAt = time.Time{} }, powered},
		{"unknown product", func(i *model.Issue) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := customerIssue()
			tt.mutate(issue)
			assert.Nil(t, p.CustomerSLA(issue, tt.product, now))
		})
	}
}

func TestCustomerSLA_IgnoresAssignmentTime(t *testing.T) {
	issue := customerIssue()
	issue.TechnicianName = null.StringFrom("Technician 1")
	issue.TechnicianAssignedAt = null.TimeFrom(t0.Add(5 * time.Hour))

	d := DefaultPolicy().CustomerSLA(issue, powered, t0)
	require.NotNil(t, d)
	assert.Equal(t, t0.Add(12*time.Hour), d.DueAt)
}

func TestWarrantyRepair(t *testing.T) {
	p := DefaultPolicy()

	t.Run("anchored on repair start", func(t *testing.T) {
		child := &model.Issue{
			IsWarrantyRoute:         true,
			Status:                  model.IssueStatusInProgress,
			CreatedAt:               t0,
			WarrantyRepairStartedAt: null.TimeFrom(t0.Add(3 * time.Hour)),
		}
		d := p.WarrantyRepair(child, t0.Add(4*time.Hour))
		require.NotNil(t, d)
		assert.Equal(t, KindWarrantyRepair, d.Kind)
		assert.Equal(t, t0.Add(27*time.Hour), d.DueAt)
		assert.Equal(t, 23*time.Hour, d.Remaining)
		assert.Equal(t, UrgencyNormal, d.Urgency)
	})

	t.Run("falls back to created_at", func(t *testing.T) {
		child := &model.Issue{IsWarrantyRoute: true, Status: model.IssueStatusInService, CreatedAt: t0}
		d := p.WarrantyRepair(child, t0.Add(20*time.Hour))
		require.NotNil(t, d)
		assert.Equal(t, UrgencyWarning, d.Urgency)
	})

	t.Run("warranty resolution still in service", func(t *testing.T) {
		parent := &model.Issue{
			Status:              model.IssueStatusInService,
			WarrantyServiceType: null.StringFrom("warranty"),
			CreatedAt:           t0,
		}
		assert.NotNil(t, p.WarrantyRepair(parent, t0))
	})

	t.Run("not applicable", func(t *testing.T) {
		assert.Nil(t, p.WarrantyRepair(&model.Issue{Status: model.IssueStatusInProgress, CreatedAt: t0}, t0))
		assert.Nil(t, p.WarrantyRepair(&model.Issue{IsWarrantyRoute: true, Status: model.IssueStatusResolved, CreatedAt: t0}, t0))
		assert.Nil(t, p.WarrantyRepair(&model.Issue{IsWarrantyRoute: true, Status: model.IssueStatusInService}, t0))
		assert.Nil(t, p.WarrantyRepair(nil, t0))
	})
}

func TestFor_PrefersWarrantyClock(t *testing.T) {
	issue := customerIssue()
	issue.Status = model.IssueStatusInService
	issue.WarrantyServiceType = null.StringFrom("warranty")
	issue.WarrantyRepairStartedAt = null.TimeFrom(t0.Add(2 * time.Hour))

	d := DefaultPolicy().For(issue, powered, t0.Add(3*time.Hour))
	require.NotNil(t, d)
	assert.Equal(t, KindWarrantyRepair, d.Kind)

	assert.Nil(t, DefaultPolicy().For(customerIssue(), rollIn, t0))
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.SLAConfig{CustomerHours: 8, WarrantyRepairHours: 48, WarningHours: 4, CriticalHours: 1})
	assert.Equal(t, 8*time.Hour, p.CustomerWindow)
	assert.Equal(t, 48*time.Hour, p.RepairWindow)
	assert.Equal(t, UrgencyWarning, p.Classify(3*time.Hour))
	assert.Equal(t, UrgencyCritical, p.Classify(30*time.Minute))
	assert.Equal(t, UrgencyNormal, p.Classify(5*time.Hour))
}
