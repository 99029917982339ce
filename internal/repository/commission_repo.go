package repository

import (
	"context"

	"commission-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionFilter narrows commission listings. Zero values do not filter.
type CommissionFilter struct {
	EmployeeID *uuid.UUID
	Status     string
	SourceType string
	SourceID   string
	Page       int
	Limit      int
}

type CommissionRepository interface {
	Create(ctx context.Context, commission *model.Commission) error
	Update(ctx context.Context, commission *model.Commission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Commission, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Commission, error)
	FindOpenBySource(ctx context.Context, employeeID uuid.UUID, source model.SourceRef) (*model.Commission, error)
	LockSource(ctx context.Context, employeeID uuid.UUID, source model.SourceRef) error
	CountByRule(ctx context.Context, ruleID uuid.UUID) (int64, error)
	List(ctx context.Context, filter CommissionFilter) ([]model.Commission, int64, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type commissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) CommissionRepository {
	return &commissionRepository{db: db}
}

func (r *commissionRepository) Create(ctx context.Context, commission *model.Commission) error {
	return GetDB(ctx, r.db).Create(commission).Error
}

func (r *commissionRepository) Update(ctx context.Context, commission *model.Commission) error {
	return GetDB(ctx, r.db).Save(commission).Error
}

func (r *commissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Commission, error) {
	var commission model.Commission
	if err := GetDB(ctx, r.db).First(&commission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

// FindByIDForUpdate row-locks the commission for the rest of the transaction
func (r *commissionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Commission, error) {
	var commission model.Commission
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&commission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

// FindOpenBySource returns the non-cancelled commission for the (employee, source) pair
func (r *commissionRepository) FindOpenBySource(ctx context.Context, employeeID uuid.UUID, source model.SourceRef) (*model.Commission, error) {
	var commission model.Commission
	if err := GetDB(ctx, r.db).
		Where("employee_id = ? AND source_type = ? AND source_id = ?", employeeID, source.Type, source.ID).
		Where("status <> ?", model.CommissionCancelled).
		First(&commission).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

// LockSource takes a transaction-scoped advisory lock on the (employee, source) pair so that
// concurrent deliveries of the same event serialise on the check-then-insert.
func (r *commissionRepository) LockSource(ctx context.Context, employeeID uuid.UUID, source model.SourceRef) error {
	return advisoryXactLock(GetDB(ctx, r.db), "commission:"+employeeID.String()+"|"+source.Type+"|"+source.ID)
}

func (r *commissionRepository) CountByRule(ctx context.Context, ruleID uuid.UUID) (int64, error) {
	var count int64
	// Unscoped: soft-deleted commissions still reference the rule
	if err := GetDB(ctx, r.db).Unscoped().Model(&model.Commission{}).Where("rule_id = ?", ruleID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *commissionRepository) List(ctx context.Context, filter CommissionFilter) ([]model.Commission, int64, error) {
	var commissions []model.Commission
	var total int64

	db := GetDB(ctx, r.db)
	filtered := func(tx *gorm.DB) *gorm.DB {
		if filter.EmployeeID != nil {
			tx = tx.Where("employee_id = ?", *filter.EmployeeID)
		}
		if filter.Status != "" {
			tx = tx.Where("status = ?", filter.Status)
		}
		if filter.SourceType != "" {
			tx = tx.Where("source_type = ?", filter.SourceType)
		}
		if filter.SourceID != "" {
			tx = tx.Where("source_id = ?", filter.SourceID)
		}
		return tx
	}

	if err := db.Model(&model.Commission{}).Scopes(filtered).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(filtered).Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&commissions).Error; err != nil {
		return nil, 0, err
	}

	return commissions, total, nil
}

func (r *commissionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Commission{}).Error
}
