package repository

import (
	"context"
	"time"

	"commission-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *model.CommissionRule) error
	Update(ctx context.Context, rule *model.CommissionRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CommissionRule, error)
	List(ctx context.Context, employeeID *uuid.UUID, page, limit int) ([]model.CommissionRule, int64, error)
	ListActiveForEmployee(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]model.CommissionRule, error)
}

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.CommissionRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

func (r *ruleRepository) Update(ctx context.Context, rule *model.CommissionRule) error {
	return GetDB(ctx, r.db).Save(rule).Error
}

func (r *ruleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.CommissionRule{}).Error
}

func (r *ruleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CommissionRule, error) {
	var rule model.CommissionRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, employeeID *uuid.UUID, page, limit int) ([]model.CommissionRule, int64, error) {
	var rules []model.CommissionRule
	var total int64

	db := GetDB(ctx, r.db)
	byEmployee := func(tx *gorm.DB) *gorm.DB {
		if employeeID != nil {
			return tx.Where("employee_id = ?", *employeeID)
		}
		return tx
	}

	if err := db.Model(&model.CommissionRule{}).Scopes(byEmployee).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Scopes(byEmployee).Order("priority DESC, created_at ASC").Offset(offset).Limit(limit).Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// ListActiveForEmployee returns the snapshot of active rules whose window contains asOf,
// ranked priority DESC, created_at ASC, id ASC.
func (r *ruleRepository) ListActiveForEmployee(ctx context.Context, employeeID uuid.UUID, asOf time.Time) ([]model.CommissionRule, error) {
	var rules []model.CommissionRule
	if err := GetDB(ctx, r.db).
		Where("employee_id = ? AND is_active = ?", employeeID, true).
		Where("effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)", asOf, asOf).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
