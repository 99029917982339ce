package service

import (
	"fmt"

	"commission-service/internal/model"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// CalculationResult is the priced outcome of a rule (or manual override) for one base amount
type CalculationResult struct {
	TotalAmount          decimal.Decimal
	CommissionPercentage decimal.Decimal
	Breakdown            model.CalculationBreakdown
}

// RoundHalfUp rounds d to places decimals with ties going toward +∞ (2.345 -> 2.35, -2.345 -> -2.34).
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// Calculate prices a commission.
//
// Rounding contract: the total is rounded half-up to 2 places exactly once, after tier
// contributions and adjustments are summed. Tier contributions in the breakdown stay unrounded.
// The percentage scheme also rounds its base contribution before adjustments are added.
//
// A non-nil override always wins and yields a manual commission of round2(override).
// Otherwise a nil rule, or a total below rule.MinCommissionAmount, is ErrNoEligibleCommission.
// Rules are assumed valid; malformed configurations are rejected by ValidateRuleConfig at write time.
func Calculate(rule *model.CommissionRule, baseAmount decimal.Decimal, adjustments []model.Adjustment, override *decimal.Decimal) (CalculationResult, error) {
	if override != nil {
		total := RoundHalfUp(*override, 2)
		return CalculationResult{
			TotalAmount:          total,
			CommissionPercentage: blendedRate(total, baseAmount),
			Breakdown: model.CalculationBreakdown{
				Scheme:           model.SchemeManual,
				BaseAmount:       baseAmount,
				BaseContribution: *override,
				UnroundedTotal:   *override,
			},
		}, nil
	}

	if rule == nil {
		return CalculationResult{}, fmt.Errorf("%w: no applicable rule", ErrNoEligibleCommission)
	}

	breakdown := model.CalculationBreakdown{
		Scheme:      string(rule.Type),
		BaseAmount:  baseAmount,
		Adjustments: adjustments,
		Rule:        snapshotRule(rule),
	}

	switch rule.Type {
	case model.RuleTypePercentage:
		breakdown.BaseContribution = RoundHalfUp(baseAmount.Mul(rule.Rate).Div(hundred), 2)
	case model.RuleTypeFixed:
		breakdown.BaseContribution = rule.Rate
	case model.RuleTypeTiered:
		breakdown.Tiers = progressiveTiers(rule.Tiers, baseAmount)
		sum := decimal.Zero
		for _, tc := range breakdown.Tiers {
			sum = sum.Add(tc.Contribution)
		}
		breakdown.BaseContribution = sum
	default:
		return CalculationResult{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRuleConfiguration, rule.Type)
	}

	adjustmentTotal := decimal.Zero
	for _, adj := range adjustments {
		adjustmentTotal = adjustmentTotal.Add(adj.Amount)
	}
	breakdown.AdjustmentTotal = adjustmentTotal
	breakdown.UnroundedTotal = breakdown.BaseContribution.Add(adjustmentTotal)

	total := RoundHalfUp(breakdown.UnroundedTotal, 2)

	if rule.MinCommissionAmount != nil && total.LessThan(*rule.MinCommissionAmount) {
		return CalculationResult{}, fmt.Errorf("%w: total %s is below minimum %s",
			ErrNoEligibleCommission, total.StringFixed(2), rule.MinCommissionAmount.StringFixed(2))
	}

	return CalculationResult{
		TotalAmount:          total,
		CommissionPercentage: blendedRate(total, baseAmount),
		Breakdown:            breakdown,
	}, nil
}

// progressiveTiers walks ascending brackets, charging the part of base inside [lower, upper) at each tier's rate
func progressiveTiers(tiers []model.Tier, base decimal.Decimal) []model.TierContribution {
	contributions := make([]model.TierContribution, 0, len(tiers))
	lower := decimal.Zero

	for _, tier := range tiers {
		if !base.GreaterThan(lower) {
			break
		}

		portion := base.Sub(lower)
		if tier.UpperBound != nil && base.GreaterThan(*tier.UpperBound) {
			portion = tier.UpperBound.Sub(lower)
		}

		contributions = append(contributions, model.TierContribution{
			LowerBound:   lower,
			UpperBound:   tier.UpperBound,
			Rate:         tier.Rate,
			Portion:      portion,
			Contribution: portion.Mul(tier.Rate).Div(hundred),
		})

		if tier.UpperBound == nil {
			break
		}
		lower = *tier.UpperBound
	}

	return contributions
}

// blendedRate is the informational effective percentage of base paid out, clamped to what the
// commission_percentage column stores
func blendedRate(total, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	rate := RoundHalfUp(total.Div(base).Mul(hundred), 4)
	if rate.GreaterThan(model.MaxCommissionPercentage) {
		return model.MaxCommissionPercentage
	}
	if rate.LessThan(model.MaxCommissionPercentage.Neg()) {
		return model.MaxCommissionPercentage.Neg()
	}
	return rate
}

func snapshotRule(rule *model.CommissionRule) *model.RuleSnapshot {
	tiers := make([]model.Tier, len(rule.Tiers))
	copy(tiers, rule.Tiers)
	return &model.RuleSnapshot{
		ID:                  rule.ID,
		Name:                rule.Name,
		Type:                rule.Type,
		Priority:            rule.Priority,
		Rate:                rule.Rate,
		Tiers:               tiers,
		MinCommissionAmount: rule.MinCommissionAmount,
		AutoApprove:         rule.AutoApprove,
	}
}
