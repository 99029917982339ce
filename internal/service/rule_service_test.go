package service

import (
	"context"
	"testing"

	"commission-service/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ruleFixture struct {
	svc         RuleService
	rules       *memRuleRepo
	commissions *memCommissionRepo
	audit       *memAuditRepo
}

func newRuleFixture() *ruleFixture {
	f := &ruleFixture{
		rules:       newMemRuleRepo(),
		commissions: newMemCommissionRepo(),
		audit:       &memAuditRepo{},
	}
	f.svc = NewRuleService(RuleServiceDeps{
		Rules:       f.rules,
		Commissions: f.commissions,
		Tx:          &serialTx{},
		Audit:       NewAuditService(AuditServiceDeps{Repository: f.audit}),
	})
	return f
}

func percentageRequest() RuleRequest {
	return RuleRequest{
		EmployeeID:    salesEmployee.String(),
		Name:          "Freight 10%",
		Type:          "percentage",
		Rate:          decPtr("10"),
		ServiceTypes:  []string{"freight"},
		Priority:      5,
		EffectiveFrom: "2026-01-01",
	}
}

func TestRuleService_CreateRule(t *testing.T) {
	f := newRuleFixture()

	rule, err := f.svc.CreateRule(context.Background(), percentageRequest(), managerID.String())
	require.NoError(t, err)

	assert.Equal(t, "percentage", rule.Type)
	assert.Equal(t, "10.0000", rule.Rate)
	assert.True(t, rule.IsActive)
	assert.Equal(t, "2026-01-01T00:00:00Z", rule.EffectiveFrom)
	assert.Nil(t, rule.EffectiveTo)

	stored, ok := f.rules.get(uuid.MustParse(rule.ID))
	require.True(t, ok)
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, managerID, *stored.CreatedBy)
	assert.Equal(t, []string{model.ActionCreateCommissionRule}, f.audit.actions())
}

func TestRuleService_CreateTieredRule(t *testing.T) {
	f := newRuleFixture()
	req := percentageRequest()
	req.Type = "tiered"
	req.Rate = nil
	req.Tiers = []model.Tier{
		{UpperBound: decPtr("1000"), Rate: dec("5")},
		{Rate: dec("8")},
	}

	rule, err := f.svc.CreateRule(context.Background(), req, managerID.String())
	require.NoError(t, err)
	require.Len(t, rule.Tiers, 2)
	assert.Equal(t, "1000.00", *rule.Tiers[0].UpperBound)
	assert.Nil(t, rule.Tiers[1].UpperBound)
	assert.Equal(t, "0.0000", rule.Rate)
}

func TestRuleService_CreateRuleRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(r *RuleRequest){
		"missing rate":        func(r *RuleRequest) { r.Rate = nil },
		"tiered without tier": func(r *RuleRequest) { r.Type = "tiered"; r.Rate = nil },
		"bad type":            func(r *RuleRequest) { r.Type = "bonus" },
		"bad employee":        func(r *RuleRequest) { r.EmployeeID = "emp-1" },
		"bad date":            func(r *RuleRequest) { r.EffectiveFrom = "01/02/2026" },
		"inverted window":     func(r *RuleRequest) { r.EffectiveTo = "2025-12-31" },
		"negative rate":       func(r *RuleRequest) { r.Rate = decPtr("-1") },
		"blank service type":  func(r *RuleRequest) { r.ServiceTypes = []string{""} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newRuleFixture()
			req := percentageRequest()
			mutate(&req)

			_, err := f.svc.CreateRule(context.Background(), req, managerID.String())
			assert.ErrorIs(t, err, ErrInvalidRuleConfiguration)
			assert.Empty(t, f.audit.actions())
		})
	}
}

func TestRuleService_UpdateRule(t *testing.T) {
	f := newRuleFixture()
	created, err := f.svc.CreateRule(context.Background(), percentageRequest(), managerID.String())
	require.NoError(t, err)

	req := percentageRequest()
	req.Rate = decPtr("12.5")
	inactive := false
	req.IsActive = &inactive

	updated, err := f.svc.UpdateRule(context.Background(), created.ID, req, managerID.String())
	require.NoError(t, err)
	assert.Equal(t, "12.5000", updated.Rate)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{model.ActionCreateCommissionRule, model.ActionUpdateCommissionRule}, f.audit.actions())
}

func TestRuleService_UpdateRuleKeepsStoredRuleOnError(t *testing.T) {
	f := newRuleFixture()
	created, err := f.svc.CreateRule(context.Background(), percentageRequest(), managerID.String())
	require.NoError(t, err)

	req := percentageRequest()
	req.Rate = decPtr("-3")
	_, err = f.svc.UpdateRule(context.Background(), created.ID, req, managerID.String())
	assert.ErrorIs(t, err, ErrInvalidRuleConfiguration)

	got, err := f.svc.GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0000", got.Rate)
}

func TestRuleService_DeleteUnreferencedRule(t *testing.T) {
	f := newRuleFixture()
	created, err := f.svc.CreateRule(context.Background(), percentageRequest(), managerID.String())
	require.NoError(t, err)

	result, err := f.svc.DeleteRule(context.Background(), created.ID, managerID.String())
	require.NoError(t, err)
	assert.False(t, result.Deactivated)

	_, err = f.svc.GetRule(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.Contains(t, f.audit.actions(), model.ActionDeleteCommissionRule)
}

func TestRuleService_DeleteReferencedRuleDeactivates(t *testing.T) {
	f := newRuleFixture()
	created, err := f.svc.CreateRule(context.Background(), percentageRequest(), managerID.String())
	require.NoError(t, err)

	ruleID := uuid.MustParse(created.ID)
	require.NoError(t, f.commissions.Create(context.Background(), &model.Commission{
		EmployeeID: salesEmployee,
		SourceType: model.SourceShipment,
		SourceID:   "SHP-1",
		RuleID:     &ruleID,
		Status:     model.CommissionPaid,
	}))

	result, err := f.svc.DeleteRule(context.Background(), created.ID, managerID.String())
	require.NoError(t, err)
	assert.True(t, result.Deactivated)

	got, err := f.svc.GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Contains(t, f.audit.actions(), model.ActionDeactivateCommissionRule)
}

func TestRuleService_NotFound(t *testing.T) {
	f := newRuleFixture()

	_, err := f.svc.GetRule(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = f.svc.DeleteRule(context.Background(), "bogus", "")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRuleService_GetRulesByEmployee(t *testing.T) {
	f := newRuleFixture()
	_, err := f.svc.CreateRule(context.Background(), percentageRequest(), "")
	require.NoError(t, err)

	other := percentageRequest()
	other.EmployeeID = uuid.NewString()
	_, err = f.svc.CreateRule(context.Background(), other, "")
	require.NoError(t, err)

	rules, total, err := f.svc.GetRules(context.Background(), salesEmployee.String(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, rules, 1)

	_, _, err = f.svc.GetRules(context.Background(), "x", 1, 20)
	assert.ErrorIs(t, err, ErrInvalidRuleConfiguration)
}
