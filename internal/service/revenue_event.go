package service

import (
	"fmt"
	"strings"
	"time"

	"commission-service/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trigger kinds pushed by the shipment/quote/invoice collaborators
const (
	TriggerCompleted   = "completed"
	TriggerInvoicePaid = "invoice_paid"
)

// RevenueEvent is a completed revenue event for one sales employee. Amounts are already converted
// to Currency by the sender.
type RevenueEvent struct {
	EmployeeID       uuid.UUID          `json:"employee_id"`
	Source           model.SourceRef    `json:"source_entity"`
	ServiceType      string             `json:"service_type"`
	Category         string             `json:"category"`
	ProductID        *string            `json:"product_id"`
	OrderValue       decimal.Decimal    `json:"order_value"`
	BaseAmount       decimal.Decimal    `json:"base_amount"` // Defaults to OrderValue when zero
	Margin           decimal.Decimal    `json:"margin"`
	MarginPercentage decimal.Decimal    `json:"margin_percentage"`
	Currency         string             `json:"currency"`
	OccurredAt       time.Time          `json:"occurred_at"`
	TriggerKind      string             `json:"trigger_kind" binding:"required,oneof=completed invoice_paid"`
	Adjustments      []model.Adjustment `json:"adjustments"`
	ManualOverride   *decimal.Decimal   `json:"manual_override"`

	// Actor is the authenticated caller that pushed the event, nil for system triggers
	Actor *uuid.UUID `json:"-"`
}

// CommissionBase is the amount commission is computed on
func (e RevenueEvent) CommissionBase() decimal.Decimal {
	if e.BaseAmount.IsZero() {
		return e.OrderValue
	}
	return e.BaseAmount
}

func (e RevenueEvent) productID() string {
	if e.ProductID == nil {
		return ""
	}
	return *e.ProductID
}

func validateEvent(e RevenueEvent) error {
	switch {
	case e.EmployeeID == uuid.Nil:
		return invalidRequest("employee_id is required")
	case e.Source.Type != model.SourceShipment && e.Source.Type != model.SourceQuote && e.Source.Type != model.SourceInvoice:
		return invalidRequest(fmt.Sprintf("unknown source type %q", e.Source.Type))
	case strings.TrimSpace(e.Source.ID) == "":
		return invalidRequest("source id is required")
	case len(e.Source.ID) > model.MaxSourceIDLength:
		return invalidRequest(fmt.Sprintf("source id must be at most %d characters", model.MaxSourceIDLength))
	case e.TriggerKind != TriggerCompleted && e.TriggerKind != TriggerInvoicePaid:
		return invalidRequest(fmt.Sprintf("unknown trigger kind %q", e.TriggerKind))
	case e.OccurredAt.IsZero():
		return invalidRequest("occurred_at is required")
	case e.OrderValue.IsNegative() || e.BaseAmount.IsNegative():
		return invalidRequest("amounts must not be negative")
	case e.MarginPercentage.Abs().GreaterThan(model.MaxMarginPercentage):
		return invalidRequest("margin_percentage is out of range")
	case len(e.Currency) != 3:
		return invalidRequest("currency must be a 3-letter code")
	}
	return nil
}

func invalidRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommissionRequest, msg)
}
