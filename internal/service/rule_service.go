package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-service/internal/model"
	"commission-service/internal/observability"
	"commission-service/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type RuleRequest struct {
	EmployeeID           string           `json:"employee_id" validate:"required,uuid"`
	Name                 string           `json:"name" validate:"max=255"`
	Type                 string           `json:"type" validate:"required,oneof=percentage fixed tiered"`
	Rate                 *decimal.Decimal `json:"rate" validate:"required_unless=Type tiered"` // Percentage (10 = 10%) or fixed amount
	Tiers                []model.Tier     `json:"tiers" validate:"required_if=Type tiered"`
	ServiceTypes         []string         `json:"service_types" validate:"dive,required,max=50"`
	ApplicableCategories []string         `json:"applicable_categories" validate:"dive,required,max=100"`
	ApplicableProducts   []string         `json:"applicable_products" validate:"dive,required,max=100"`
	MinMarginPercentage  *decimal.Decimal `json:"min_margin_percentage"`
	MinOrderValue        *decimal.Decimal `json:"min_order_value"`
	MinCommissionAmount  *decimal.Decimal `json:"min_commission_amount"`
	Priority             int              `json:"priority"`
	EffectiveFrom        string           `json:"effective_from" validate:"required"` // YYYY-MM-DD or RFC3339
	EffectiveTo          string           `json:"effective_to"`                       // Exclusive, empty = open-ended
	AutoApprove          bool             `json:"auto_approve"`
	IsActive             *bool            `json:"is_active"` // Defaults to true
}

type TierResponse struct {
	UpperBound *string `json:"upper_bound"`
	Rate       string  `json:"rate"`
}

type RuleResponse struct {
	ID                   string         `json:"id"`
	EmployeeID           string         `json:"employee_id"`
	Name                 string         `json:"name"`
	Type                 string         `json:"type"`
	Rate                 string         `json:"rate"`
	Tiers                []TierResponse `json:"tiers,omitempty"`
	ServiceTypes         []string       `json:"service_types"`
	ApplicableCategories []string       `json:"applicable_categories"`
	ApplicableProducts   []string       `json:"applicable_products"`
	MinMarginPercentage  *string        `json:"min_margin_percentage"`
	MinOrderValue        *string        `json:"min_order_value"`
	MinCommissionAmount  *string        `json:"min_commission_amount"`
	Priority             int            `json:"priority"`
	EffectiveFrom        string         `json:"effective_from"`
	EffectiveTo          *string        `json:"effective_to"`
	AutoApprove          bool           `json:"auto_approve"`
	IsActive             bool           `json:"is_active"`
	CreatedAt            string         `json:"created_at"`
	UpdatedAt            string         `json:"updated_at"`
}

// DeleteRuleResult tells the caller whether the rule was removed or only deactivated
type DeleteRuleResult struct {
	ID          string `json:"id"`
	Deactivated bool   `json:"deactivated"`
}

// --- Interface ---

type RuleService interface {
	GetRules(ctx context.Context, employeeID string, page, limit int) ([]RuleResponse, int64, error)
	GetRule(ctx context.Context, id string) (RuleResponse, error)
	CreateRule(ctx context.Context, req RuleRequest, userID string) (RuleResponse, error)
	UpdateRule(ctx context.Context, id string, req RuleRequest, userID string) (RuleResponse, error)
	DeleteRule(ctx context.Context, id string, userID string) (DeleteRuleResult, error)
}

// RuleServiceDeps bundles constructor inputs for the rule store service.
type RuleServiceDeps struct {
	Rules       repository.RuleRepository
	Commissions repository.CommissionRepository
	Tx          repository.TransactionManager
	Audit       AuditService
	Logger      *zap.Logger
}

type ruleService struct {
	rules       repository.RuleRepository
	commissions repository.CommissionRepository
	tx          repository.TransactionManager
	audit       AuditService
	logger      *zap.Logger
	validate    *validator.Validate
}

func NewRuleService(deps RuleServiceDeps) RuleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ruleService{
		rules:       deps.Rules,
		commissions: deps.Commissions,
		tx:          deps.Tx,
		audit:       deps.Audit,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// --- Implementation ---

func (s *ruleService) GetRules(ctx context.Context, employeeID string, page, limit int) ([]RuleResponse, int64, error) {
	var employee *uuid.UUID
	if employeeID != "" {
		parsed, err := uuid.Parse(employeeID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid employee_id", ErrInvalidRuleConfiguration)
		}
		employee = &parsed
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	rules, total, err := s.rules.List(ctx, employee, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch commission rules: %w", err)
	}

	res := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toRuleResponse(r))
	}
	return res, total, nil
}

func (s *ruleService) GetRule(ctx context.Context, id string) (RuleResponse, error) {
	rule, err := s.findRule(ctx, id)
	if err != nil {
		return RuleResponse{}, err
	}
	return toRuleResponse(*rule), nil
}

func (s *ruleService) CreateRule(ctx context.Context, req RuleRequest, userID string) (RuleResponse, error) {
	var rule model.CommissionRule
	if err := s.applyRequest(&rule, req); err != nil {
		return RuleResponse{}, err
	}

	actor := parseActor(userID)
	rule.CreatedBy = actor
	rule.UpdatedBy = actor

	if err := s.rules.Create(ctx, &rule); err != nil {
		return RuleResponse{}, fmt.Errorf("failed to create commission rule: %w", err)
	}

	observability.FromContext(ctx, s.logger).Info("commission rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("employee_id", rule.EmployeeID.String()),
		zap.String("type", string(rule.Type)),
	)

	s.audit.Record(ctx, AuditRecord{
		EntityType: model.EntityCommissionRule,
		EntityID:   rule.ID.String(),
		Action:     model.ActionCreateCommissionRule,
		Actor:      actor,
		Details:    toRuleResponse(rule),
	})

	return toRuleResponse(rule), nil
}

// UpdateRule edits a rule in place. Existing commissions are unaffected because they carry a rule snapshot.
func (s *ruleService) UpdateRule(ctx context.Context, id string, req RuleRequest, userID string) (RuleResponse, error) {
	rule, err := s.findRule(ctx, id)
	if err != nil {
		return RuleResponse{}, err
	}
	before := toRuleResponse(*rule)

	if err := s.applyRequest(rule, req); err != nil {
		return RuleResponse{}, err
	}
	actor := parseActor(userID)
	rule.UpdatedBy = actor

	if err := s.rules.Update(ctx, rule); err != nil {
		return RuleResponse{}, fmt.Errorf("failed to update commission rule: %w", err)
	}

	after := toRuleResponse(*rule)
	s.audit.Record(ctx, AuditRecord{
		EntityType: model.EntityCommissionRule,
		EntityID:   rule.ID.String(),
		Action:     model.ActionUpdateCommissionRule,
		Actor:      actor,
		Details:    map[string]any{"before": before, "after": after},
	})

	return after, nil
}

// DeleteRule soft-deletes an unreferenced rule. A rule any commission points at is deactivated instead.
func (s *ruleService) DeleteRule(ctx context.Context, id string, userID string) (DeleteRuleResult, error) {
	ruleID, err := uuid.Parse(id)
	if err != nil {
		return DeleteRuleResult{}, fmt.Errorf("%w: invalid rule id", ErrRuleNotFound)
	}
	actor := parseActor(userID)

	var deactivated bool
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rule, findErr := s.rules.FindByID(txCtx, ruleID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrRuleNotFound
			}
			return fmt.Errorf("failed to fetch commission rule: %w", findErr)
		}

		refs, countErr := s.commissions.CountByRule(txCtx, ruleID)
		if countErr != nil {
			return fmt.Errorf("failed to count rule references: %w", countErr)
		}

		if refs > 0 {
			deactivated = true
			rule.IsActive = false
			rule.UpdatedBy = actor
			if updateErr := s.rules.Update(txCtx, rule); updateErr != nil {
				return fmt.Errorf("failed to deactivate commission rule: %w", updateErr)
			}
			return nil
		}

		if deleteErr := s.rules.Delete(txCtx, ruleID); deleteErr != nil {
			return fmt.Errorf("failed to delete commission rule: %w", deleteErr)
		}
		return nil
	})
	if err != nil {
		return DeleteRuleResult{}, err
	}

	action := model.ActionDeleteCommissionRule
	if deactivated {
		action = model.ActionDeactivateCommissionRule
	}
	s.audit.Record(ctx, AuditRecord{
		EntityType: model.EntityCommissionRule,
		EntityID:   id,
		Action:     action,
		Actor:      actor,
		Details:    map[string]string{"rule_id": id},
	})

	return DeleteRuleResult{ID: id, Deactivated: deactivated}, nil
}

// --- Helpers ---

func (s *ruleService) findRule(ctx context.Context, id string) (*model.CommissionRule, error) {
	ruleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rule id", ErrRuleNotFound)
	}
	rule, err := s.rules.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to fetch commission rule: %w", err)
	}
	return rule, nil
}

// applyRequest validates req and copies it onto rule. rule is left untouched on error.
func (s *ruleService) applyRequest(rule *model.CommissionRule, req RuleRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRuleConfiguration, err.Error())
	}

	effectiveFrom, err := parseRuleDate(req.EffectiveFrom)
	if err != nil {
		return fmt.Errorf("%w: invalid effective_from: %s", ErrInvalidRuleConfiguration, err.Error())
	}
	var effectiveTo *time.Time
	if req.EffectiveTo != "" {
		t, parseErr := parseRuleDate(req.EffectiveTo)
		if parseErr != nil {
			return fmt.Errorf("%w: invalid effective_to: %s", ErrInvalidRuleConfiguration, parseErr.Error())
		}
		effectiveTo = &t
	}

	next := *rule
	next.EmployeeID = uuid.MustParse(req.EmployeeID) // format checked by the validator
	next.Name = req.Name
	next.Type = model.RuleType(req.Type)
	next.Rate = decimal.Zero
	if req.Rate != nil && next.Type != model.RuleTypeTiered {
		next.Rate = *req.Rate
	}
	next.Tiers = req.Tiers
	next.ServiceTypes = req.ServiceTypes
	next.ApplicableCategories = req.ApplicableCategories
	next.ApplicableProducts = req.ApplicableProducts
	next.MinMarginPercentage = req.MinMarginPercentage
	next.MinOrderValue = req.MinOrderValue
	next.MinCommissionAmount = req.MinCommissionAmount
	next.Priority = req.Priority
	next.EffectiveFrom = effectiveFrom
	next.EffectiveTo = effectiveTo
	next.AutoApprove = req.AutoApprove
	next.IsActive = req.IsActive == nil || *req.IsActive

	if err := ValidateRuleConfig(&next); err != nil {
		return err
	}

	*rule = next
	return nil
}

func parseRuleDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", value)
	}
	return t, nil
}

// parseActor turns the token subject into an actor id. Unparseable subjects are recorded as system.
func parseActor(userID string) *uuid.UUID {
	if userID == "" {
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &parsed
}

func decimalPtrString(d *decimal.Decimal, places int32) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(places)
	return &s
}

func toRuleResponse(r model.CommissionRule) RuleResponse {
	resp := RuleResponse{
		ID:                   r.ID.String(),
		EmployeeID:           r.EmployeeID.String(),
		Name:                 r.Name,
		Type:                 string(r.Type),
		Rate:                 r.Rate.StringFixed(4),
		ServiceTypes:         r.ServiceTypes,
		ApplicableCategories: r.ApplicableCategories,
		ApplicableProducts:   r.ApplicableProducts,
		MinMarginPercentage:  decimalPtrString(r.MinMarginPercentage, 4),
		MinOrderValue:        decimalPtrString(r.MinOrderValue, 2),
		MinCommissionAmount:  decimalPtrString(r.MinCommissionAmount, 2),
		Priority:             r.Priority,
		EffectiveFrom:        r.EffectiveFrom.Format(time.RFC3339),
		AutoApprove:          r.AutoApprove,
		IsActive:             r.IsActive,
		CreatedAt:            r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            r.UpdatedAt.Format(time.RFC3339),
	}
	for _, t := range r.Tiers {
		resp.Tiers = append(resp.Tiers, TierResponse{
			UpperBound: decimalPtrString(t.UpperBound, 2),
			Rate:       t.Rate.StringFixed(4),
		})
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.Format(time.RFC3339)
		resp.EffectiveTo = &s
	}
	return resp
}
