package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionStatus enum
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionApproved  CommissionStatus = "approved"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

// SourceType enum constants for the revenue entity a commission is earned on
const (
	SourceShipment = "shipment"
	SourceQuote    = "quote"
	SourceInvoice  = "invoice"
)

// Column limits of the commissions table
const MaxSourceIDLength = 64

var (
	// MaxCommissionPercentage is the largest value decimal(18,4) holds
	MaxCommissionPercentage = decimal.RequireFromString("99999999999999.9999")
	// MaxMarginPercentage is the largest value decimal(10,4) holds
	MaxMarginPercentage = decimal.RequireFromString("999999.9999")
)

// Calculation schemes recorded in the breakdown. Manual covers override amounts without a rule.
const (
	SchemePercentage = string(RuleTypePercentage)
	SchemeFixed      = string(RuleTypeFixed)
	SchemeTiered     = string(RuleTypeTiered)
	SchemeManual     = "manual"
)

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionPending:  {CommissionApproved, CommissionCancelled},
	CommissionApproved: {CommissionPaid, CommissionCancelled},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	return slices.Contains(commissionTransitions[s], next)
}

// IsTerminal is true for paid and cancelled
func (s CommissionStatus) IsTerminal() bool {
	return s == CommissionPaid || s == CommissionCancelled
}

// SourceRef identifies the revenue entity (shipment, quote, invoice) behind a commission
type SourceRef struct {
	Type string `json:"type" binding:"required,oneof=shipment quote invoice"`
	ID   string `json:"id" binding:"required"`
}

// Adjustment is a manual, itemized addition or subtraction applied after the base formula
type Adjustment struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// TierContribution records how much of the base fell in one bracket and what it earned (unrounded)
type TierContribution struct {
	LowerBound   decimal.Decimal  `json:"lower_bound"`
	UpperBound   *decimal.Decimal `json:"upper_bound"`
	Rate         decimal.Decimal  `json:"rate"`
	Portion      decimal.Decimal  `json:"portion"`
	Contribution decimal.Decimal  `json:"contribution"`
}

// RuleSnapshot freezes the rule parameters used, so later rule edits never rewrite history
type RuleSnapshot struct {
	ID                  uuid.UUID        `json:"id"`
	Name                string           `json:"name"`
	Type                RuleType         `json:"type"`
	Priority            int              `json:"priority"`
	Rate                decimal.Decimal  `json:"rate"`
	Tiers               []Tier           `json:"tiers,omitempty"`
	MinCommissionAmount *decimal.Decimal `json:"min_commission_amount,omitempty"`
	AutoApprove         bool             `json:"auto_approve"`
}

// CalculationBreakdown is stored as jsonb next to the commission for auditability
type CalculationBreakdown struct {
	Scheme           string             `json:"scheme"`
	BaseAmount       decimal.Decimal    `json:"base_amount"`
	BaseContribution decimal.Decimal    `json:"base_contribution"`
	Tiers            []TierContribution `json:"tiers,omitempty"`
	Adjustments      []Adjustment       `json:"adjustments,omitempty"`
	AdjustmentTotal  decimal.Decimal    `json:"adjustment_total"`
	UnroundedTotal   decimal.Decimal    `json:"unrounded_total"`
	Rule             *RuleSnapshot      `json:"rule,omitempty"`
}

// Commission is the outcome of one revenue event for one employee.
// At most one non-cancelled, non-deleted row exists per (employee, source type, source id).
type Commission struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EmployeeID uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_commissions_open_source,priority:1,where:status <> 'cancelled' AND deleted_at IS NULL" json:"employee_id"`
	SourceType string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_commissions_open_source,priority:2" json:"source_type"`
	SourceID   string     `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_commissions_open_source,priority:3" json:"source_id"`
	RuleID     *uuid.UUID `gorm:"type:uuid;index" json:"rule_id"` // nil = manual/no-rule commission

	BaseAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"base_amount"`
	Margin           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"margin"`
	MarginPercentage decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"margin_percentage"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`

	CommissionPercentage decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0" json:"commission_percentage"`
	TotalAmount          decimal.Decimal      `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	CalculationBreakdown CalculationBreakdown `gorm:"type:jsonb;serializer:json" json:"calculation_breakdown"`

	Status CommissionStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	ApprovedBy    *uuid.UUID `gorm:"type:uuid" json:"approved_by"` // nil on an approved row = auto-approved by the system
	ApprovedDate  *time.Time `json:"approved_date"`
	ApprovalNotes string     `gorm:"type:text" json:"approval_notes"`

	PaidDate         *time.Time `json:"paid_date"`
	PaymentReference string     `gorm:"type:varchar(100)" json:"payment_reference"`
	PaymentMethod    string     `gorm:"type:varchar(50)" json:"payment_method"`
	PaidBy           *uuid.UUID `gorm:"type:uuid" json:"paid_by"`

	CancelledBy        *uuid.UUID `gorm:"type:uuid" json:"cancelled_by"`
	CancelledDate      *time.Time `json:"cancelled_date"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Source returns the revenue entity reference for the commission
func (c *Commission) Source() SourceRef {
	return SourceRef{Type: c.SourceType, ID: c.SourceID}
}
