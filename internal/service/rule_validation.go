package service

import (
	"fmt"

	"commission-service/internal/model"

	"github.com/google/uuid"
)

// ValidateRuleConfig checks the type-specific shape of a rule. It runs on every rule write so the
// calculator never sees a malformed configuration.
func ValidateRuleConfig(rule *model.CommissionRule) error {
	if rule.EmployeeID == uuid.Nil {
		return invalidRule("employee_id is required")
	}

	switch rule.Type {
	case model.RuleTypePercentage, model.RuleTypeFixed:
		if rule.Rate.IsNegative() {
			return invalidRule("rate must not be negative")
		}
		if len(rule.Tiers) > 0 {
			return invalidRule("tiers are only allowed on tiered rules")
		}
	case model.RuleTypeTiered:
		if err := validateTiers(rule.Tiers); err != nil {
			return err
		}
	default:
		return invalidRule(fmt.Sprintf("unknown rule type %q", rule.Type))
	}

	if rule.MinMarginPercentage != nil && rule.MinMarginPercentage.IsNegative() {
		return invalidRule("min_margin_percentage must not be negative")
	}
	if rule.MinOrderValue != nil && rule.MinOrderValue.IsNegative() {
		return invalidRule("min_order_value must not be negative")
	}
	if rule.MinCommissionAmount != nil && rule.MinCommissionAmount.IsNegative() {
		return invalidRule("min_commission_amount must not be negative")
	}
	if rule.EffectiveFrom.IsZero() {
		return invalidRule("effective_from is required")
	}
	if rule.EffectiveTo != nil && !rule.EffectiveTo.After(rule.EffectiveFrom) {
		return invalidRule("effective_to must be after effective_from")
	}

	return nil
}

// validateTiers enforces strictly ascending positive bounds with exactly one unbounded tier, in last position
func validateTiers(tiers []model.Tier) error {
	if len(tiers) == 0 {
		return invalidRule("tiered rules need at least one tier")
	}

	for i, tier := range tiers {
		if tier.Rate.IsNegative() {
			return invalidRule(fmt.Sprintf("tier %d: rate must not be negative", i+1))
		}

		last := i == len(tiers)-1
		if tier.UpperBound == nil {
			if !last {
				return invalidRule(fmt.Sprintf("tier %d: only the last tier may be unbounded", i+1))
			}
			continue
		}
		if last {
			return invalidRule("the last tier must be unbounded")
		}
		if !tier.UpperBound.IsPositive() {
			return invalidRule(fmt.Sprintf("tier %d: upper_bound must be positive", i+1))
		}
		if i > 0 && !tier.UpperBound.GreaterThan(*tiers[i-1].UpperBound) {
			return invalidRule(fmt.Sprintf("tier %d: upper_bound must be greater than the previous tier", i+1))
		}
	}

	return nil
}

func invalidRule(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRuleConfiguration, msg)
}
