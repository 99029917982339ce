package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateCommissionRule     = "CREATE_COMMISSION_RULE"
	ActionUpdateCommissionRule     = "UPDATE_COMMISSION_RULE"
	ActionDeleteCommissionRule     = "DELETE_COMMISSION_RULE"
	ActionDeactivateCommissionRule = "DEACTIVATE_COMMISSION_RULE"

	// Commission lifecycle actions
	ActionCreateCommission  = "CREATE_COMMISSION"
	ActionApproveCommission = "APPROVE_COMMISSION"
	ActionPayCommission     = "PAY_COMMISSION"
	ActionCancelCommission  = "CANCEL_COMMISSION"
	ActionDeleteCommission  = "DELETE_COMMISSION"
)

// Audited entity types
const (
	EntityCommissionRule = "commission_rule"
	EntityCommission     = "commission"
)

// AuditLog is an append-only history entry for rule changes and commission transitions
type AuditLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions (auto-approval)
	Action       string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType   string     `gorm:"type:varchar(30);not null;index:idx_audit_logs_entity" json:"entity_type"`
	EntityID     string     `gorm:"type:varchar(64);index:idx_audit_logs_entity" json:"entity_id"`
	BeforeStatus string     `gorm:"type:varchar(20)" json:"before_status,omitempty"`
	AfterStatus  string     `gorm:"type:varchar(20)" json:"after_status,omitempty"`
	Details      string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}
