package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"commission-service/internal/model"
	"commission-service/internal/repository"

	"github.com/google/uuid"
)

type RuleResolver interface {
	ResolveRule(ctx context.Context, employeeID uuid.UUID, event RevenueEvent) (*model.CommissionRule, error)
	ListEligibleRules(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]uuid.UUID, error)
}

type ruleResolver struct {
	rules repository.RuleRepository
}

func NewRuleResolver(rules repository.RuleRepository) RuleResolver {
	return &ruleResolver{rules: rules}
}

// ResolveRule reads the employee's active rules once and picks the winner for event, or nil.
func (r *ruleResolver) ResolveRule(ctx context.Context, employeeID uuid.UUID, event RevenueEvent) (*model.CommissionRule, error) {
	rules, err := r.rules.ListActiveForEmployee(ctx, employeeID, event.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission rules: %w", err)
	}
	return SelectRule(rules, employeeID, event), nil
}

// ListEligibleRules returns the ranked ids of rules whose effective window contains asOf.
// Event filters are not applied; this is a diagnostic view.
func (r *ruleResolver) ListEligibleRules(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	rules, err := r.rules.ListActiveForEmployee(ctx, employeeID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission rules: %w", err)
	}

	eligible := make([]model.CommissionRule, 0, len(rules))
	for _, rule := range rules {
		if rule.EmployeeID == employeeID && rule.IsActive && rule.EffectiveAt(asOf) {
			eligible = append(eligible, rule)
		}
	}
	RankRules(eligible)

	ids := make([]uuid.UUID, 0, len(eligible))
	for _, rule := range eligible {
		ids = append(ids, rule.ID)
	}
	return ids, nil
}

// SelectRule is the pure resolution step over a rule snapshot: window, set filters and thresholds,
// then RankRules. The result does not depend on the input order.
func SelectRule(rules []model.CommissionRule, employeeID uuid.UUID, event RevenueEvent) *model.CommissionRule {
	candidates := make([]model.CommissionRule, 0, len(rules))
	for _, rule := range rules {
		if rule.EmployeeID != employeeID || !rule.IsActive || !rule.EffectiveAt(event.OccurredAt) {
			continue
		}
		if !matchesEvent(&rule, event) {
			continue
		}
		candidates = append(candidates, rule)
	}

	if len(candidates) == 0 {
		return nil
	}

	RankRules(candidates)
	winner := candidates[0]
	return &winner
}

// RankRules orders by priority DESC, created_at ASC, then id so the order is total
func RankRules(rules []model.CommissionRule) {
	slices.SortStableFunc(rules, func(a, b model.CommissionRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

func matchesEvent(rule *model.CommissionRule, event RevenueEvent) bool {
	if !model.AllowsValue(rule.ServiceTypes, event.ServiceType) ||
		!model.AllowsValue(rule.ApplicableCategories, event.Category) ||
		!model.AllowsValue(rule.ApplicableProducts, event.productID()) {
		return false
	}
	if rule.MinMarginPercentage != nil && rule.MinMarginPercentage.GreaterThan(event.MarginPercentage) {
		return false
	}
	if rule.MinOrderValue != nil && rule.MinOrderValue.GreaterThan(event.OrderValue) {
		return false
	}
	return true
}
