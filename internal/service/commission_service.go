package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commission-service/internal/model"
	"commission-service/internal/observability"
	"commission-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// createCommission outcomes. A duplicate is a successful idempotent short-circuit, not an error.
const (
	OutcomeCreated          = "created"
	OutcomeDuplicateIgnored = "duplicate_ignored"
	OutcomeSkipped          = "no_eligible_commission"
)

// Notification topics published on commission changes
const (
	TopicCommissionCreated   = "commission.created"
	TopicCommissionApproved  = "commission.approved"
	TopicCommissionPaid      = "commission.paid"
	TopicCommissionCancelled = "commission.cancelled"
)

// --- DTOs ---

type PaymentInfo struct {
	Reference string     `json:"payment_reference" binding:"required"`
	Method    string     `json:"payment_method" binding:"required"`
	PaidDate  *time.Time `json:"paid_date"` // Defaults to now
	PaidBy    *uuid.UUID `json:"-"`
}

type ApproveCommissionRequest struct {
	Notes string `json:"notes"`
}

type CancelCommissionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type CommissionFilter struct {
	EmployeeID string
	Status     string
	SourceType string
	SourceID   string
	Page       int
	Limit      int
}

type CommissionResponse struct {
	ID                   string                     `json:"id"`
	EmployeeID           string                     `json:"employee_id"`
	SourceEntity         model.SourceRef            `json:"source_entity"`
	RuleID               *string                    `json:"rule_id"`
	BaseAmount           string                     `json:"base_amount"`
	Margin               string                     `json:"margin"`
	MarginPercentage     string                     `json:"margin_percentage"`
	Currency             string                     `json:"currency"`
	CommissionPercentage string                     `json:"commission_percentage"`
	TotalAmount          string                     `json:"total_amount"`
	CalculationBreakdown model.CalculationBreakdown `json:"calculation_breakdown"`
	Status               string                     `json:"status"`
	ApprovedBy           *string                    `json:"approved_by,omitempty"`
	ApprovedDate         *string                    `json:"approved_date,omitempty"`
	ApprovalNotes        string                     `json:"approval_notes,omitempty"`
	PaidDate             *string                    `json:"paid_date,omitempty"`
	PaymentReference     string                     `json:"payment_reference,omitempty"`
	PaymentMethod        string                     `json:"payment_method,omitempty"`
	PaidBy               *string                    `json:"paid_by,omitempty"`
	CancelledBy          *string                    `json:"cancelled_by,omitempty"`
	CancelledDate        *string                    `json:"cancelled_date,omitempty"`
	CancellationReason   string                     `json:"cancellation_reason,omitempty"`
	CreatedAt            string                     `json:"created_at"`
	UpdatedAt            string                     `json:"updated_at"`
}

type CreateCommissionResult struct {
	Outcome    string             `json:"outcome"`
	Commission CommissionResponse `json:"commission"`
}

// --- Interface ---

// Notifier pushes commission changes to live dashboards. Delivery is best-effort.
type Notifier interface {
	Publish(topic string, payload any)
}

type CommissionService interface {
	CreateCommission(ctx context.Context, event RevenueEvent) (CreateCommissionResult, error)
	ApproveCommission(ctx context.Context, id string, approver uuid.UUID, notes string) (CommissionResponse, error)
	MarkPaid(ctx context.Context, id string, payment PaymentInfo) (CommissionResponse, error)
	CancelCommission(ctx context.Context, id string, actor uuid.UUID, reason string) (CommissionResponse, error)
	DeleteCommission(ctx context.Context, id string, actor uuid.UUID) error
	GetCommission(ctx context.Context, id string) (CommissionResponse, error)
	ListCommissions(ctx context.Context, filter CommissionFilter) ([]CommissionResponse, int64, error)
	ListEligibleRules(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]uuid.UUID, error)
}

// CommissionServiceDeps bundles constructor inputs for the lifecycle manager.
type CommissionServiceDeps struct {
	Commissions repository.CommissionRepository
	Resolver    RuleResolver
	Tx          repository.TransactionManager
	Audit       AuditService
	Notifier    Notifier
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Clock       func() time.Time
}

type commissionService struct {
	commissions repository.CommissionRepository
	resolver    RuleResolver
	tx          repository.TransactionManager
	audit       AuditService
	notifier    Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	clock       func() time.Time
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, any) {}

func NewCommissionService(deps CommissionServiceDeps) CommissionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &commissionService{
		commissions: deps.Commissions,
		resolver:    deps.Resolver,
		tx:          deps.Tx,
		audit:       deps.Audit,
		notifier:    notifier,
		logger:      logger,
		metrics:     deps.Metrics,
		clock:       func() time.Time { return clock().UTC() },
	}
}

// --- Implementation ---

// CreateCommission turns a revenue event into at most one open commission per (employee, source).
//
// Check-then-insert runs in one transaction under an advisory lock on the source key, with the
// partial unique index on commissions as the backstop. A repeated or concurrent delivery of the
// same event returns the existing record with OutcomeDuplicateIgnored. When no rule applies or the
// result is under the rule minimum, nothing is written and ErrNoEligibleCommission is returned.
func (s *commissionService) CreateCommission(ctx context.Context, event RevenueEvent) (CreateCommissionResult, error) {
	if err := validateEvent(event); err != nil {
		return CreateCommissionResult{}, err
	}

	logger := observability.FromContext(ctx, s.logger).With(
		zap.String("employee_id", event.EmployeeID.String()),
		zap.String("source_type", event.Source.Type),
		zap.String("source_id", event.Source.ID),
		zap.String("trigger_kind", event.TriggerKind),
	)

	var (
		existing *model.Commission
		created  *model.Commission
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if lockErr := s.commissions.LockSource(txCtx, event.EmployeeID, event.Source); lockErr != nil {
			return fmt.Errorf("failed to lock commission source: %w", lockErr)
		}

		found, findErr := s.commissions.FindOpenBySource(txCtx, event.EmployeeID, event.Source)
		if findErr == nil {
			existing = found
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing commission: %w", findErr)
		}

		var rule *model.CommissionRule
		if event.ManualOverride == nil {
			resolved, resolveErr := s.resolver.ResolveRule(txCtx, event.EmployeeID, event)
			if resolveErr != nil {
				return resolveErr
			}
			rule = resolved
		}

		calc, calcErr := Calculate(rule, event.CommissionBase(), event.Adjustments, event.ManualOverride)
		if calcErr != nil {
			return calcErr
		}

		commission := s.buildCommission(event, rule, calc)
		if createErr := s.commissions.Create(txCtx, commission); createErr != nil {
			return fmt.Errorf("failed to create commission: %w", createErr)
		}
		created = commission
		return nil
	})

	// The open-source unique index rejected the insert; another caller's record is the answer.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		found, findErr := s.commissions.FindOpenBySource(ctx, event.EmployeeID, event.Source)
		if findErr != nil {
			return CreateCommissionResult{}, fmt.Errorf("failed to load concurrent commission: %w", findErr)
		}
		existing, err = found, nil
	}

	switch {
	case errors.Is(err, ErrNoEligibleCommission):
		logger.Info("no eligible commission", zap.Error(err))
		s.metrics.CommissionOutcome(ctx, OutcomeSkipped)
		return CreateCommissionResult{}, err
	case err != nil:
		return CreateCommissionResult{}, err
	case existing != nil:
		logger.Info("duplicate revenue event ignored", zap.String("commission_id", existing.ID.String()))
		s.metrics.CommissionOutcome(ctx, OutcomeDuplicateIgnored)
		return CreateCommissionResult{Outcome: OutcomeDuplicateIgnored, Commission: toCommissionResponse(*existing)}, nil
	}

	logger.Info("commission created",
		zap.String("commission_id", created.ID.String()),
		zap.String("status", string(created.Status)),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
	)
	s.metrics.CommissionOutcome(ctx, OutcomeCreated)

	resp := toCommissionResponse(*created)
	s.audit.Record(ctx, AuditRecord{
		EntityType:  model.EntityCommission,
		EntityID:    created.ID.String(),
		Action:      model.ActionCreateCommission,
		AfterStatus: string(created.Status),
		Actor:       event.Actor,
		OccurredAt:  created.CreatedAt,
		Details: map[string]any{
			"source_entity": created.Source(),
			"trigger_kind":  event.TriggerKind,
			"rule_id":       resp.RuleID,
			"total_amount":  resp.TotalAmount,
			"auto_approved": created.Status == model.CommissionApproved,
		},
	})
	s.notifier.Publish(TopicCommissionCreated, resp)

	return CreateCommissionResult{Outcome: OutcomeCreated, Commission: resp}, nil
}

func (s *commissionService) ApproveCommission(ctx context.Context, id string, approver uuid.UUID, notes string) (CommissionResponse, error) {
	if approver == uuid.Nil {
		return CommissionResponse{}, invalidRequest("approver is required")
	}
	notes = strings.TrimSpace(notes)

	return s.transition(ctx, id, &approver, model.CommissionApproved, model.ActionApproveCommission, TopicCommissionApproved,
		func(c *model.Commission, now time.Time) {
			c.ApprovedBy = &approver
			c.ApprovedDate = &now
			c.ApprovalNotes = notes
		})
}

func (s *commissionService) MarkPaid(ctx context.Context, id string, payment PaymentInfo) (CommissionResponse, error) {
	reference := strings.TrimSpace(payment.Reference)
	method := strings.TrimSpace(payment.Method)
	if reference == "" || method == "" {
		return CommissionResponse{}, invalidRequest("payment reference and method are required")
	}
	if payment.PaidBy == nil || *payment.PaidBy == uuid.Nil {
		return CommissionResponse{}, invalidRequest("paid_by is required")
	}

	return s.transition(ctx, id, payment.PaidBy, model.CommissionPaid, model.ActionPayCommission, TopicCommissionPaid,
		func(c *model.Commission, now time.Time) {
			c.ApprovedBy = nil
			c.ApprovedDate = nil
			c.ApprovalNotes = ""
			paidDate := now
			if payment.PaidDate != nil {
				paidDate = payment.PaidDate.UTC()
			}
			c.PaidDate = &paidDate
			c.PaymentReference = reference
			c.PaymentMethod = method
			c.PaidBy = payment.PaidBy
		})
}

// CancelCommission voids a pending or approved commission. Approval metadata is cleared so the row
// only carries the fields of its current status; the audit trail keeps the earlier approval.
// MarkPaid does the same.
func (s *commissionService) CancelCommission(ctx context.Context, id string, actor uuid.UUID, reason string) (CommissionResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return CommissionResponse{}, invalidRequest("cancellation reason is required")
	}
	if actor == uuid.Nil {
		return CommissionResponse{}, invalidRequest("actor is required")
	}

	return s.transition(ctx, id, &actor, model.CommissionCancelled, model.ActionCancelCommission, TopicCommissionCancelled,
		func(c *model.Commission, now time.Time) {
			c.ApprovedBy = nil
			c.ApprovedDate = nil
			c.ApprovalNotes = ""
			c.CancelledBy = &actor
			c.CancelledDate = &now
			c.CancellationReason = reason
		})
}

// DeleteCommission soft-deletes a cancelled commission for correction scenarios
func (s *commissionService) DeleteCommission(ctx context.Context, id string, actor uuid.UUID) error {
	commissionID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid commission id", ErrCommissionNotFound)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, findErr := s.commissions.FindByIDForUpdate(txCtx, commissionID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrCommissionNotFound
			}
			return fmt.Errorf("failed to fetch commission: %w", findErr)
		}
		if c.Status != model.CommissionCancelled {
			return fmt.Errorf("%w: only cancelled commissions can be deleted, commission is %s", ErrInvalidStatusTransition, c.Status)
		}
		if deleteErr := s.commissions.SoftDelete(txCtx, commissionID); deleteErr != nil {
			return fmt.Errorf("failed to delete commission: %w", deleteErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var actorRef *uuid.UUID
	if actor != uuid.Nil {
		actorRef = &actor
	}
	s.audit.Record(ctx, AuditRecord{
		EntityType:   model.EntityCommission,
		EntityID:     id,
		Action:       model.ActionDeleteCommission,
		BeforeStatus: string(model.CommissionCancelled),
		AfterStatus:  string(model.CommissionCancelled),
		Actor:        actorRef,
	})
	return nil
}

func (s *commissionService) GetCommission(ctx context.Context, id string) (CommissionResponse, error) {
	commissionID, err := uuid.Parse(id)
	if err != nil {
		return CommissionResponse{}, fmt.Errorf("%w: invalid commission id", ErrCommissionNotFound)
	}
	c, err := s.commissions.FindByID(ctx, commissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CommissionResponse{}, ErrCommissionNotFound
		}
		return CommissionResponse{}, fmt.Errorf("failed to fetch commission: %w", err)
	}
	return toCommissionResponse(*c), nil
}

func (s *commissionService) ListCommissions(ctx context.Context, filter CommissionFilter) ([]CommissionResponse, int64, error) {
	repoFilter := repository.CommissionFilter{
		Status:     filter.Status,
		SourceType: filter.SourceType,
		SourceID:   filter.SourceID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}
	if filter.EmployeeID != "" {
		employeeID, err := uuid.Parse(filter.EmployeeID)
		if err != nil {
			return nil, 0, invalidRequest("invalid employee_id")
		}
		repoFilter.EmployeeID = &employeeID
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 20
	}

	commissions, total, err := s.commissions.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch commissions: %w", err)
	}

	res := make([]CommissionResponse, 0, len(commissions))
	for _, c := range commissions {
		res = append(res, toCommissionResponse(c))
	}
	return res, total, nil
}

// ListEligibleRules exposes the resolver's window view for diagnostics
func (s *commissionService) ListEligibleRules(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	if employeeID == uuid.Nil {
		return nil, invalidRequest("employee_id is required")
	}
	if asOf.IsZero() {
		asOf = s.clock()
	}
	return s.resolver.ListEligibleRules(ctx, employeeID, asOf)
}

// transition row-locks the commission, checks the state machine and applies the status-specific metadata.
// Disallowed moves leave the row untouched and return ErrInvalidStatusTransition.
func (s *commissionService) transition(
	ctx context.Context,
	id string,
	actor *uuid.UUID,
	to model.CommissionStatus,
	action, topic string,
	apply func(c *model.Commission, now time.Time),
) (CommissionResponse, error) {
	commissionID, err := uuid.Parse(id)
	if err != nil {
		return CommissionResponse{}, fmt.Errorf("%w: invalid commission id", ErrCommissionNotFound)
	}

	var (
		updated *model.Commission
		from    model.CommissionStatus
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, findErr := s.commissions.FindByIDForUpdate(txCtx, commissionID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrCommissionNotFound
			}
			return fmt.Errorf("failed to fetch commission: %w", findErr)
		}

		from = c.Status
		if !c.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: commission is already %s, cannot move to %s", ErrInvalidStatusTransition, c.Status, to)
		}

		apply(c, s.clock())
		c.Status = to
		if saveErr := s.commissions.Update(txCtx, c); saveErr != nil {
			return fmt.Errorf("failed to update commission: %w", saveErr)
		}
		updated = c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidStatusTransition) {
			observability.FromContext(ctx, s.logger).Info("commission transition rejected",
				zap.String("commission_id", id),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
		}
		return CommissionResponse{}, err
	}

	resp := toCommissionResponse(*updated)
	s.audit.Record(ctx, AuditRecord{
		EntityType:   model.EntityCommission,
		EntityID:     updated.ID.String(),
		Action:       action,
		BeforeStatus: string(from),
		AfterStatus:  string(to),
		Actor:        actor,
		Details: map[string]any{
			"approval_notes":      updated.ApprovalNotes,
			"payment_reference":   updated.PaymentReference,
			"payment_method":      updated.PaymentMethod,
			"cancellation_reason": updated.CancellationReason,
		},
	})
	s.notifier.Publish(topic, resp)

	return resp, nil
}

func (s *commissionService) buildCommission(event RevenueEvent, rule *model.CommissionRule, calc CalculationResult) *model.Commission {
	now := s.clock()
	commission := &model.Commission{
		EmployeeID:           event.EmployeeID,
		SourceType:           event.Source.Type,
		SourceID:             event.Source.ID,
		BaseAmount:           event.CommissionBase(),
		Margin:               event.Margin,
		MarginPercentage:     event.MarginPercentage,
		Currency:             strings.ToUpper(event.Currency),
		CommissionPercentage: calc.CommissionPercentage,
		TotalAmount:          calc.TotalAmount,
		CalculationBreakdown: calc.Breakdown,
		Status:               model.CommissionPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if rule != nil {
		ruleID := rule.ID
		commission.RuleID = &ruleID

		// Auto-approval only fires on payment confirmation; completed shipments still wait for a manager
		if rule.AutoApprove && event.TriggerKind == TriggerInvoicePaid {
			commission.Status = model.CommissionApproved
			commission.ApprovedDate = &now
			commission.ApprovalNotes = "auto-approved by rule " + rule.ID.String()
		}
	}

	return commission
}

// --- Helpers ---

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toCommissionResponse(c model.Commission) CommissionResponse {
	return CommissionResponse{
		ID:                   c.ID.String(),
		EmployeeID:           c.EmployeeID.String(),
		SourceEntity:         c.Source(),
		RuleID:               uuidPtrString(c.RuleID),
		BaseAmount:           c.BaseAmount.StringFixed(2),
		Margin:               c.Margin.StringFixed(2),
		MarginPercentage:     c.MarginPercentage.StringFixed(2),
		Currency:             c.Currency,
		CommissionPercentage: c.CommissionPercentage.StringFixed(4),
		TotalAmount:          c.TotalAmount.StringFixed(2),
		CalculationBreakdown: c.CalculationBreakdown,
		Status:               string(c.Status),
		ApprovedBy:           uuidPtrString(c.ApprovedBy),
		ApprovedDate:         timePtrString(c.ApprovedDate),
		ApprovalNotes:        c.ApprovalNotes,
		PaidDate:             timePtrString(c.PaidDate),
		PaymentReference:     c.PaymentReference,
		PaymentMethod:        c.PaymentMethod,
		PaidBy:               uuidPtrString(c.PaidBy),
		CancelledBy:          uuidPtrString(c.CancelledBy),
		CancelledDate:        timePtrString(c.CancelledDate),
		CancellationReason:   c.CancellationReason,
		CreatedAt:            c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            c.UpdatedAt.Format(time.RFC3339),
	}
}
