package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RuleType enumerates the supported commission schemes
type RuleType string

const (
	RuleTypePercentage RuleType = "percentage"
	RuleTypeFixed      RuleType = "fixed"
	RuleTypeTiered     RuleType = "tiered"
)

// Tier is one bracket of a tiered rule. A nil UpperBound marks the final, unbounded tier.
type Tier struct {
	UpperBound *decimal.Decimal `json:"upper_bound"`
	Rate       decimal.Decimal  `json:"rate"` // percentage, e.g. 5 = 5%
}

// CommissionRule describes how an employee earns commission on a revenue event.
// Rules are snapshot-read at resolution time; commissions keep a copy of the parameters they used.
type CommissionRule struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;index:idx_commission_rules_employee" json:"employee_id"`
	Name       string    `gorm:"type:varchar(255)" json:"name"`
	Type       RuleType  `gorm:"type:varchar(20);not null" json:"type"`

	// Rate is a percentage for percentage rules and an absolute amount for fixed rules. Unused for tiered.
	Rate  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"rate"`
	Tiers []Tier          `gorm:"type:jsonb;serializer:json" json:"tiers,omitempty"`

	// Eligibility filters, AND-combined. Empty sets and nil thresholds do not filter.
	ServiceTypes         []string         `gorm:"type:jsonb;serializer:json" json:"service_types,omitempty"`
	ApplicableCategories []string         `gorm:"type:jsonb;serializer:json" json:"applicable_categories,omitempty"`
	ApplicableProducts   []string         `gorm:"type:jsonb;serializer:json" json:"applicable_products,omitempty"`
	MinMarginPercentage  *decimal.Decimal `gorm:"type:decimal(10,4)" json:"min_margin_percentage"`
	MinOrderValue        *decimal.Decimal `gorm:"type:decimal(18,4)" json:"min_order_value"`

	MinCommissionAmount *decimal.Decimal `gorm:"type:decimal(18,4)" json:"min_commission_amount"` // Post-calculation floor, voids below

	Priority      int        `gorm:"not null;default:0" json:"priority"`
	EffectiveFrom time.Time  `gorm:"not null;index" json:"effective_from"`
	EffectiveTo   *time.Time `gorm:"index" json:"effective_to"` // Exclusive, nil = open-ended
	AutoApprove   bool       `gorm:"not null" json:"auto_approve"`
	IsActive      bool       `gorm:"not null;index:idx_commission_rules_employee" json:"is_active"`

	CreatedBy *uuid.UUID     `gorm:"type:uuid" json:"created_by"`
	UpdatedBy *uuid.UUID     `gorm:"type:uuid" json:"updated_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// EffectiveAt reports whether t falls within [EffectiveFrom, EffectiveTo)
func (r *CommissionRule) EffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || t.Before(*r.EffectiveTo)
}

// AllowsValue treats an empty filter set as "any value"
func AllowsValue(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	return slices.Contains(set, value)
}
